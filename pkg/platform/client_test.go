package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "secret", CommunityID: "c1"})
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{CommunityID: "c1"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestResolveMember(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/communities/c1/members/m1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(memberPayload{ID: "m1", Name: "alice", Roles: []string{"r1", "r2"}})
	})
	mux.HandleFunc("/communities/c1/members/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown member", http.StatusNotFound)
	})
	c := newTestClient(t, mux)

	member, err := c.ResolveMember(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "alice", member.Name)

	roles, err := c.CurrentRoles(context.Background(), member)
	require.NoError(t, err)
	assert.Contains(t, roles, "r1")
	assert.Contains(t, roles, "r2")

	_, err = c.ResolveMember(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrMemberNotFound)
	assert.Equal(t, OutcomeMemberNotFound, Classify(err))
}

func TestResolveRole(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/communities/c1/roles", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]rolePayload{{ID: "r1", Name: "Premium"}})
	})
	c := newTestClient(t, mux)

	role, err := c.ResolveRole(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Premium", role.Name)

	_, err = c.ResolveRole(context.Background(), "r9")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRemoveRolesSendsOneBatch(t *testing.T) {
	var calls int32
	type captured struct {
		body   removeRolesPayload
		reason string
	}
	seen := make(chan captured, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/communities/c1/members/m1/roles/remove", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		var rec captured
		rec.reason = r.Header.Get("X-Audit-Log-Reason")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec.body))
		seen <- rec
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)

	err := c.RemoveRoles(context.Background(), &types.Member{ID: "m1"}, []string{"r1", "r2"}, "grant expired")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	got := <-seen
	assert.Equal(t, []string{"r1", "r2"}, got.body.RoleIDs)
	assert.Equal(t, "grant%20expired", got.reason)
	decoded, err := url.PathUnescape(got.reason)
	require.NoError(t, err)
	assert.Equal(t, "grant expired", decoded)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Outcome
	}{
		{name: "forbidden", status: http.StatusForbidden, want: OutcomePermissionDenied},
		{name: "unauthorized", status: http.StatusUnauthorized, want: OutcomePermissionDenied},
		{name: "rate limited", status: http.StatusTooManyRequests, want: OutcomeTransient},
		{name: "server error", status: http.StatusBadGateway, want: OutcomeTransient},
		{name: "member left", status: http.StatusNotFound, want: OutcomeMemberNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))

			err := c.RemoveRoles(context.Background(), &types.Member{ID: "m1"}, []string{"r1"}, "")
			require.Error(t, err)
			assert.Equal(t, tt.want, Classify(err))

			var apiErr *APIError
			if assert.ErrorAs(t, err, &apiErr) {
				assert.Equal(t, tt.status, apiErr.StatusCode)
			}
		})
	}
}

func TestMemberNotFoundKeepsResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown member", http.StatusNotFound)
	}))
	ctx := context.Background()

	_, resolveErr := c.ResolveMember(ctx, "m1")
	dmErr := c.SendDirectMessage(ctx, "m1", "hello")

	for _, err := range []error{resolveErr, dmErr} {
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMemberNotFound)
		assert.Equal(t, OutcomeMemberNotFound, Classify(err))

		var apiErr *APIError
		if assert.ErrorAs(t, err, &apiErr) {
			assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		}
		assert.Contains(t, err.Error(), "unknown member")
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.RemoveRoles(ctx, &types.Member{ID: "m1"}, []string{"r1"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, OutcomeTransient, Classify(err))
}

func TestMessages(t *testing.T) {
	dm := make(chan messagePayload, 1)
	channel := make(chan messagePayload, 1)
	decodeInto := func(out chan<- messagePayload) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var m messagePayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
			out <- m
			w.WriteHeader(http.StatusCreated)
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/users/m1/messages", decodeInto(dm))
	mux.HandleFunc("/channels/ch1/messages", decodeInto(channel))
	c := newTestClient(t, mux)

	require.NoError(t, c.SendDirectMessage(context.Background(), "m1", "hello"))
	require.NoError(t, c.SendChannelMessage(context.Background(), "ch1", "hi", []string{"m1"}))
	assert.Equal(t, "hello", (<-dm).Content)
	assert.Equal(t, []string{"m1"}, (<-channel).Mentions)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, Classify(nil))
	assert.Equal(t, OutcomeRoleNotFound, Classify(ErrRoleNotFound))
	assert.Equal(t, OutcomeTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, OutcomeTransient, Classify(context.Canceled))
}
