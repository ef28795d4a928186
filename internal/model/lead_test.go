package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("emailed").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatusActive(t *testing.T) {
	assert.True(t, StatusNew.Active())
	assert.True(t, StatusInConversation.Active())
	assert.False(t, StatusRepliedNo.Active())
	assert.False(t, Status("bogus").Active())
}

func TestLeadDisplayName(t *testing.T) {
	l := &Lead{}
	assert.Equal(t, "your business", l.DisplayName())

	l.Name = Ptr("Jane Doe")
	assert.Equal(t, "Jane Doe", l.DisplayName())

	l.BusinessName = Ptr("Acme Bakery")
	assert.Equal(t, "Acme Bakery", l.DisplayName())
}

func TestLeadLastTurn(t *testing.T) {
	l := &Lead{}
	assert.Nil(t, l.LastTurn())

	l.Turns = []Turn{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}
	assert.Equal(t, RoleAssistant, l.LastTurn().Role)
}

func TestPtr(t *testing.T) {
	assert.Nil(t, Ptr("   "))
	p := Ptr("  x@y.com ")
	if assert.NotNil(t, p) {
		assert.Equal(t, "x@y.com", *p)
	}
	assert.Equal(t, "", Deref(nil))
}

func TestEnrichmentResultEmpty(t *testing.T) {
	assert.True(t, EnrichmentResult{}.Empty())
	assert.False(t, EnrichmentResult{Phone: "+15551234567"}.Empty())
}
