package consult

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/earlywarn-cli/internal/labels"
	"github.com/KaramelBytes/earlywarn-cli/internal/utils"
)

// DefaultQuestion is asked when the user gives none.
const DefaultQuestion = "현재 데이터와 위험 신호를 바탕으로 매출을 지키고 단골을 늘리는 마케팅 전략을 추천해 주세요."

// SystemPrompt frames the consultant role.
const SystemPrompt = "당신은 소상공인 식당/리테일의 운영·마케팅 컨설턴트입니다. 제공된 상점 카드와 조기경보 신호에 근거한 실행 전략만 제시하세요."

// PhaseGuideline is the required structure of the action plan.
const PhaseGuideline = `마케팅 전략은 Phase별 Action Plan(3~5단계)으로 제시해야 한다.
- 각 Phase는 ①목표 ②실행 전략 ③다음 단계로 넘어가는 기준(KPI)을 포함한다.
- KPI 예: 신규 방문객 수, 재방문율, 리뷰 건수·평점, SNS 반응률, 매출 성장률 등.
- 반드시 이전 Phase KPI를 달성해야 다음 Phase로 넘어갈 수 있다.`

var outputSections = []string{
	"# 요약",
	"## 채널 우선순위",
	"## 실행 전략",
	"## Phase별 Action Plan",
	"## KPI 및 모니터링 지표",
	"## 리스크와 대응",
}

// BuildPrompt renders the consultant prompt for p and returns it with its
// token estimate.
func BuildPrompt(p *Profile, question string) (string, int) {
	question = strings.TrimSpace(question)
	if question == "" {
		question = DefaultQuestion
	}
	var sb strings.Builder
	sb.WriteString("[상점 카드]\n")
	fmt.Fprintf(&sb, "- 가맹점 코드: %s\n", orUnknown(p.MerchantID))
	fmt.Fprintf(&sb, "- 상점명: %s\n", orUnknown(p.StoreName))
	fmt.Fprintf(&sb, "- 업종: %s\n", orUnknown(p.Industry))
	fmt.Fprintf(&sb, "- 형태: %s\n", franchiseLabel(p.Franchise))
	if p.AgeMonths >= 0 {
		fmt.Fprintf(&sb, "- 점포연령: %s (개업 후 %d개월)\n", p.StoreAge, p.AgeMonths)
	} else {
		fmt.Fprintf(&sb, "- 점포연령: %s\n", orUnknown(p.StoreAge))
	}
	fmt.Fprintf(&sb, "- 고객연령대: %s\n", orUnknown(p.CustomerAge))
	behavior := Unknown
	if len(p.Behavior) > 0 {
		behavior = strings.Join(p.Behavior, ", ")
	}
	fmt.Fprintf(&sb, "- 고객행동: %s\n\n", behavior)

	fmt.Fprintf(&sb, "[조기경보 신호 (%s 기준)]\n", orUnknown(p.Month))
	for _, k := range p.KPI {
		fmt.Fprintf(&sb, "- %s: %s\n", k.Name, formatSignal(k))
	}
	for _, r := range p.Risks {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", r.Name, describeLabel(r.Name), riskLabel(r))
	}
	if len(p.KPI) == 0 && len(p.Risks) == 0 {
		sb.WriteString("- (신호 없음)\n")
	}
	if p.AtRisk() {
		sb.WriteString("이 가맹점은 위험 신호가 켜져 있습니다. 첫 Phase는 매출 하락과 폐업 위험을 막는 방어 전략으로 시작하세요.\n")
	}
	sb.WriteString("\n[질문]\n")
	sb.WriteString(question)
	sb.WriteString("\n\n[작성 지침]\n")
	sb.WriteString(PhaseGuideline)
	sb.WriteString("\n모든 전략에는 가능한 한 정량 지표(%, %p, 건수, 원)로 데이터 근거를 제시하세요.\n\n")
	sb.WriteString("[출력 형식 (Markdown)]\n")
	sb.WriteString(strings.Join(outputSections, "\n"))
	sb.WriteString("\n")

	prompt := sb.String()
	return prompt, utils.CountTokens(prompt)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}

func franchiseLabel(f bool) string {
	if f {
		return "프랜차이즈"
	}
	return "개인점포"
}

func formatSignal(s Signal) string {
	if !s.Defined {
		return "관측 불가"
	}
	return strconv.FormatFloat(s.Value, 'f', 3, 64)
}

func riskLabel(s Signal) string {
	switch {
	case !s.Defined:
		return "관측 불가"
	case s.Value == 1:
		return "위험"
	}
	return "정상"
}

func describeLabel(name string) string {
	switch {
	case name == labels.RiskAnyColumn:
		return "종합 위험"
	case strings.HasPrefix(name, "y_drop_h"):
		return strings.TrimPrefix(name, "y_drop_h") + "개월 후 매출 급감"
	case strings.HasPrefix(name, "y_close_h"):
		return strings.TrimPrefix(name, "y_close_h") + "개월 내 폐업"
	}
	return name
}
