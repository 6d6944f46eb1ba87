package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bullionwatch/scraper/browser"
)

func newSupervisedOrchestrator(session *fakeSession) *Orchestrator {
	orch := NewOrchestrator(fastConfig(), session, nil, nil, &fakePersister{})
	orch.BindSharedPage(session.shared)

	return orch
}

func TestSupervisorSoftCleanupEveryThirdCycle(t *testing.T) {
	session := newFakeSession()
	orch := newSupervisedOrchestrator(session)
	sup := NewSupervisor(SupervisorConfig{SoftEvery: 3, PageEvery: 10, ContextEvery: 30}, session, orch)

	for i := 0; i < 9; i++ {
		sup.AfterCycle(context.Background())
	}

	assert.Equal(t, 3, session.storageClears)
	assert.Equal(t, 3, session.cacheClears)
	// The route filter comes back after each storage clear.
	assert.Equal(t, 3, session.filterInstalls)
}

func TestSupervisorContextRecreateSupersedesPageRecreate(t *testing.T) {
	session := newFakeSession()
	orch := newSupervisedOrchestrator(session)
	sup := NewSupervisor(SupervisorConfig{SoftEvery: 3, PageEvery: 10, ContextEvery: 30}, session, orch)

	for i := 0; i < 30; i++ {
		sup.AfterCycle(context.Background())
	}

	// Cycles 10 and 20 recreate the page; cycle 30 recreates the
	// context instead of triggering a second page recreate.
	assert.Equal(t, 2, session.pageRecreates)
	assert.Equal(t, 1, session.ctxRecreates)
}

func TestSupervisorRebindsSharedPageAfterRecycle(t *testing.T) {
	session := newFakeSession()
	orch := newSupervisedOrchestrator(session)
	sup := NewSupervisor(SupervisorConfig{SoftEvery: 100, PageEvery: 1, ContextEvery: 100}, session, orch)

	before := orch.SharedPage()

	sup.AfterCycle(context.Background())

	after := orch.SharedPage()

	assert.NotEqual(t, before, after)
	assert.Equal(t, browser.Page(session.shared), after)
}

func TestSupervisorLeakCheckDoesNotMutateSession(t *testing.T) {
	session := newFakeSession()
	session.counts = browser.Counts{Contexts: 3, Pages: 9, PagesPerContext: []int{3, 3, 3}}

	orch := newSupervisedOrchestrator(session)
	sup := NewSupervisor(SupervisorConfig{SoftEvery: 100, PageEvery: 100, ContextEvery: 100}, session, orch)

	sup.AfterCycle(context.Background())

	// Detection only: nothing was recycled or cleared.
	assert.Zero(t, session.pageRecreates)
	assert.Zero(t, session.ctxRecreates)
	assert.Zero(t, session.storageClears)
}
