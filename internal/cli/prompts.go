package cli

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"

	"rsidesk/internal/models"
	"rsidesk/internal/review"
)

// ConfirmSessionStart asks the operator before a review session touches the
// broker.
func ConfirmSessionStart() (bool, error) {
	confirmed := false
	prompt := &survey.Confirm{
		Message: "Start the review session? Approved orders will be submitted to the broker.",
		Default: false,
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}

const (
	choiceApprove = "Approve and submit"
	choiceReject  = "Reject"
	choiceSkip    = "Skip remaining orders"
)

// SurveySurface is the interactive approval surface backed by survey
// prompts.
type SurveySurface struct{}

func NewSurveySurface() *SurveySurface {
	return &SurveySurface{}
}

// Review presents one actionable order and returns the operator's verdict.
func (s *SurveySurface) Review(order models.SizedOrder, idx, total int) (review.Decision, error) {
	fmt.Println(RenderOrder(order, idx, total))

	var choice string
	prompt := &survey.Select{
		Message: fmt.Sprintf("%s %d %s @ ~%.2f", order.Side, order.Qty, order.Symbol, order.EstimatedPrice),
		Options: []string{choiceApprove, choiceReject, choiceSkip},
		Default: choiceReject,
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return review.Reject, err
	}

	switch choice {
	case choiceApprove:
		return review.Approve, nil
	case choiceSkip:
		return review.SkipRemaining, nil
	default:
		return review.Reject, nil
	}
}

// ShowSkipped displays an order the sizing guard could not size.
func (s *SurveySurface) ShowSkipped(order models.SizedOrder) {
	fmt.Println(RenderSkipped(order))
}
