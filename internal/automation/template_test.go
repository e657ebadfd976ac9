package automation

import "testing"

func TestRenderSubstitutesKnownTokens(t *testing.T) {
	ctx := RenderContext{
		DealName:      "Acme Renewal",
		DealAmount:    1250.5,
		DealCurrency:  "USD",
		FromStageName: "Qualified",
		ToStageName:   "Proposal",
		OwnerName:     "Dana",
		ActorName:     "Lee",
	}

	got := Render("Follow up: {{dealName}} ({{dealAmount}} {{dealCurrency}}) {{fromStageName}}->{{toStageName}} owner={{ownerName}} actor={{actorName}}", ctx)
	want := "Follow up: Acme Renewal (1250.5 USD) Qualified->Proposal owner=Dana actor=Lee"
	if got != want {
		t.Fatalf("render mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestRenderOpportunityNameAlias(t *testing.T) {
	got := Render("Check in on {{opportunityName}}", RenderContext{DealName: "Globex Expansion"})
	if got != "Check in on Globex Expansion" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRenderLeavesUnknownTokensVerbatim(t *testing.T) {
	got := Render("Ping {{unknownToken}} about {{dealName}}", RenderContext{DealName: "Acme"})
	if got != "Ping {{unknownToken}} about Acme" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRenderActorFallsBackToOwner(t *testing.T) {
	got := Render("{{actorName}} to review", RenderContext{OwnerName: "Dana", ActorName: ""})
	if got != "Dana to review" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRenderEmptyContextValues(t *testing.T) {
	got := Render("{{fromStageName}}|{{toStageName}}", RenderContext{ToStageName: "Lead"})
	if got != "|Lead" {
		t.Fatalf("unexpected render: %q", got)
	}
}
