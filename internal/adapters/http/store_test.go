package http

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

func TestSessionStoreEvictsOldestFinished(t *testing.T) {
	s := NewSessionStore(2)
	now := time.Now()

	s.Begin("running", "", 3, now)
	for i := 0; i < 3; i++ {
		s.Put(&domain.Session{ID: fmt.Sprintf("done-%d", i), Status: domain.StatusSucceeded})
	}

	require.Equal(t, 2, s.Len())
	_, ok := s.Get("running")
	require.True(t, ok)
	_, ok = s.Get("done-0")
	require.False(t, ok)
	_, ok = s.Get("done-1")
	require.False(t, ok)

	list := s.List()
	require.Equal(t, "done-2", list[0].ID)
	require.Equal(t, "running", list[1].ID)
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	s := NewSessionStore(5)
	s.Begin("a", "img:1", 3, time.Now())
	s.AppendAttempt("a", domain.AttemptRecord{Number: 1})

	got, ok := s.Get("a")
	require.True(t, ok)
	got.Attempts = append(got.Attempts, domain.AttemptRecord{Number: 2})
	got.Status = domain.StatusExhausted

	again, _ := s.Get("a")
	require.Len(t, again.Attempts, 1)
	require.Equal(t, domain.StatusRunning, again.Status)

	s.Put(&domain.Session{ID: "a", Status: domain.StatusExhausted, Failure: &domain.FailureInfo{Category: "missing_file"}})
	s.AppendAttempt("a", domain.AttemptRecord{Number: 9})
	final, _ := s.Get("a")
	require.Empty(t, final.Attempts)
	require.NotNil(t, final.Attempts)
	require.Equal(t, 1, s.Len())
}
