package automation

import (
	"strconv"
	"strings"
)

// RenderContext supplies the values substituted into title templates.
type RenderContext struct {
	DealName      string
	DealAmount    float64
	DealCurrency  string
	FromStageName string
	ToStageName   string
	OwnerName     string
	// ActorName is empty for scheduler-originated events and falls back to
	// OwnerName during rendering.
	ActorName string
}

// Render substitutes the closed set of double-brace tokens in template.
//
// Unknown tokens are left verbatim: a misconfigured template degrades
// visibly instead of producing a blank task title. Render never fails.
func Render(template string, ctx RenderContext) string {
	actor := ctx.ActorName
	if actor == "" {
		actor = ctx.OwnerName
	}
	replacer := strings.NewReplacer(
		"{{dealName}}", ctx.DealName,
		"{{opportunityName}}", ctx.DealName,
		"{{dealAmount}}", strconv.FormatFloat(ctx.DealAmount, 'f', -1, 64),
		"{{dealCurrency}}", ctx.DealCurrency,
		"{{fromStageName}}", ctx.FromStageName,
		"{{toStageName}}", ctx.ToStageName,
		"{{ownerName}}", ctx.OwnerName,
		"{{actorName}}", actor,
	)
	return replacer.Replace(template)
}

// renderContextFor builds a RenderContext from a trigger event.
func renderContextFor(ev TriggerEvent) RenderContext {
	return RenderContext{
		DealName:      ev.Deal.Name,
		DealAmount:    ev.Deal.Amount,
		DealCurrency:  ev.Deal.Currency,
		FromStageName: ev.FromStageName,
		ToStageName:   ev.ToStageName,
		OwnerName:     ev.Deal.OwnerName,
		ActorName:     ev.ActorName,
	}
}
