package pipeline

import (
	"fmt"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
	"github.com/KaramelBytes/earlywarn-cli/internal/tableio"
)

// Sources are the three raw extracts, every cell still text.
type Sources struct {
	Info *panel.Table
	KPI  *panel.Table
	Cust *panel.Table
}

// Extract reads the merchant info, KPI and customer files.
func Extract(opt Options) (*Sources, error) {
	var s Sources
	for _, in := range []struct {
		role string
		path string
		dst  **panel.Table
	}{
		{"info", opt.InfoPath, &s.Info},
		{"kpi", opt.KPIPath, &s.KPI},
		{"cust", opt.CustPath, &s.Cust},
	} {
		t, err := tableio.Read(in.path, opt.Delimiter)
		if err != nil {
			return nil, fmt.Errorf("read %s table: %w", in.role, err)
		}
		*in.dst = t
	}
	return &s, nil
}
