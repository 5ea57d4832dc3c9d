package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/donationpulse/internal/broadcast"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowFirstSave blocks the first Save until release is closed.
type slowFirstSave struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *slowFirstSave) Save(ctx context.Context, _ *domain.State) error {
	first := false
	s.once.Do(func() { first = true })
	if !first {
		return nil
	}
	close(s.entered)
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func overlayClient(t *testing.T, b *broadcast.Broadcaster) *ws.Conn {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := b.Register(conn); err != nil {
			return
		}
		go func() {
			defer b.Unregister(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(server.Close)

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSlowSaveDoesNotLoseDataUpdateBehindSettings(t *testing.T) {
	persister := &slowFirstSave{entered: make(chan struct{}), release: make(chan struct{})}
	clock := clockwork.NewFakeClockAt(t0)
	b := broadcast.NewBroadcaster(clock, 0)
	t.Cleanup(b.Stop)

	svc := NewService(testDefaults.State(), persister, b, testDefaults, clock)
	t.Cleanup(svc.Stop)

	conn := overlayClient(t, b)
	require.Eventually(t, func() bool { return b.GetClientCount() == 1 }, 2*time.Second, time.Millisecond)

	ctx := context.Background()
	added := make(chan error, 1)
	go func() {
		_, err := svc.AddDonation(ctx, ledger.DonationInput{Donor: "Bob", Streamer: "Alice", Type: "cash", Amount: "10"})
		added <- err
	}()
	<-persister.entered

	_, changed, err := svc.MergeSettings(ctx, domain.Settings{"fontSize": 40.0})
	require.NoError(t, err)
	require.True(t, changed)

	close(persister.release)
	require.NoError(t, <-added)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "no dataUpdate carrying the donation")

		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.Event != domain.EventDataUpdate {
			continue
		}

		var st domain.State
		require.NoError(t, json.Unmarshal(msg.Data, &st))
		require.Len(t, st.Donations, 1)
		assert.Equal(t, "Bob", st.Donations[0].Donor)
		assert.Equal(t, 40.0, st.Settings["fontSize"])
		return
	}
}
