package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVisit_State(t *testing.T) {
	now := time.Now()
	count := 4

	open := &Visit{}
	assert.Equal(t, VisitOpen, open.State())
	assert.True(t, open.Consistent())

	withCount := &Visit{CompletedAt: &now, LifeCount: &count}
	assert.Equal(t, VisitCompletedWithCount, withCount.State())
	assert.True(t, withCount.Consistent())

	noVisit := &Visit{CompletedAt: &now, NotVisitedReason: "contact_absent"}
	assert.Equal(t, VisitCompletedNoVisit, noVisit.State())
	assert.True(t, noVisit.Consistent())

	both := &Visit{CompletedAt: &now, LifeCount: &count, NotVisitedReason: "other"}
	assert.False(t, both.Consistent())

	openWithCount := &Visit{LifeCount: &count}
	assert.False(t, openWithCount.Consistent())
}

func TestVendorRef(t *testing.T) {
	assert.Equal(t, VendorRefByID, NewVendorRef("v-1", "Ana").Kind())
	assert.Equal(t, VendorRefByName, NewVendorRef("", " Ana ").Kind())
	assert.Equal(t, "Ana", NewVendorRef("", " Ana ").Value())
	assert.True(t, NewVendorRef("", "").IsZero())
}

func TestVendorKey(t *testing.T) {
	assert.Equal(t, "v-1", VendorKey("v-1", "Ana"))
	assert.Equal(t, "name:ANA SOUZA", VendorKey("", " Ana Souza "))
	assert.Equal(t, "Ana", VendorMatch{ID: "v-1", Name: "Ana"}.Label())
}

func TestRouteName(t *testing.T) {
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Ana - 2024-03-01", RouteName("Ana", d))
	assert.Equal(t, "Route - 2024-03-01", RouteName("", d))
}
