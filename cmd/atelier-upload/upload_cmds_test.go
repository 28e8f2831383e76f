package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commons-systems/atelier/internal/auth"
	"github.com/commons-systems/atelier/internal/drive"
	"github.com/commons-systems/atelier/internal/files"
	"github.com/commons-systems/atelier/internal/upload"
)

type stubStorage struct{}

func (stubStorage) UploadFile(ctx context.Context, file files.File, opts drive.UploadOptions) (*drive.UploadResult, error) {
	id := "id-" + file.Name
	return &drive.UploadResult{FileID: id, Name: file.Name, URL: drive.ViewURL(id)}, nil
}

// deniedSession refuses every login the way a closed consent screen does.
type deniedSession struct {
	mu        sync.Mutex
	signedIn  bool
	listeners []auth.Listener
}

func (s *deniedSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedIn
}

func (s *deniedSession) Login(ctx context.Context) {
	s.mu.Lock()
	listeners := append([]auth.Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.AuthChanged(auth.Event{Kind: auth.EventFailed, Reason: "access_denied"})
	}
}

func (s *deniedSession) Subscribe(l auth.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
	return func() {}
}

func (s *deniedSession) Invalidate(ctx context.Context) {}

func textFile(name string) files.File {
	return files.New(name, []byte("measurements"), "text/plain")
}

func TestAwaitBatchReturnsSignInFailure(t *testing.T) {
	session := &deniedSession{}
	orch, err := upload.New(stubStorage{}, session)
	require.NoError(t, err)
	defer orch.Close()

	failures, unsubscribe := signInFailures(session)
	defer unsubscribe()
	b, err := orch.Submit([]files.File{textFile("a.txt"), textFile("b.txt")}, upload.SubmitOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = awaitBatch(ctx, b, failures)
	require.Error(t, err)
	var authErr *auth.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "access_denied", authErr.Reason)

	s := b.Summary()
	assert.Equal(t, 2, s.Cancelled)
	assert.True(t, s.Settled())
}

func TestAwaitBatchCompletes(t *testing.T) {
	session := &deniedSession{signedIn: true}
	orch, err := upload.New(stubStorage{}, session)
	require.NoError(t, err)
	defer orch.Close()

	failures, unsubscribe := signInFailures(session)
	defer unsubscribe()
	b, err := orch.Submit([]files.File{textFile("a.txt")}, upload.SubmitOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, awaitBatch(ctx, b, failures))
	assert.Equal(t, 1, b.Summary().Completed)
}

func TestSignInFailuresIgnoresSuccess(t *testing.T) {
	session := &deniedSession{}
	failures, unsubscribe := signInFailures(session)
	defer unsubscribe()

	for _, l := range session.listeners {
		l.AuthChanged(auth.Event{Kind: auth.EventSucceeded})
	}
	select {
	case e := <-failures:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}
