package file_relay

import (
	"fmt"
	"os"
	"testing"

	"github.com/meetd/meetd/relay"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) relay.Relay {
	t.Helper()

	dataFile := "/tmp/meetd_test_file_relay"
	lockFile := dataFile + "_lock"
	require.NoError(t, os.RemoveAll(dataFile))
	t.Cleanup(func() {
		os.RemoveAll(dataFile)
		os.RemoveAll(lockFile)
	})

	fr, err := NewFileRelay(dataFile, lockFile)
	require.NoError(t, err)
	t.Cleanup(func() { fr.Close() })
	return fr
}

func TestSendAssignsIdAndOffset(t *testing.T) {
	req := require.New(t)
	fr := newTestRelay(t)

	for i := 0; i < 5; i++ {
		m, err := fr.Send(relay.Message{
			Sender:    "alice@example.com",
			Recipient: "bob@example.com",
			Envelope:  fmt.Sprintf("envelope-%d", i),
		})
		req.NoError(err)
		req.NotEmpty(m.ID)
		req.Equal(uint64(i), m.Offset)
	}
}

func TestGetMessagesFromOffset(t *testing.T) {
	req := require.New(t)
	fr := newTestRelay(t)

	for i := 0; i < 10; i++ {
		_, err := fr.Send(relay.Message{
			Sender:    "alice@example.com",
			Recipient: "bob@example.com",
			Envelope:  fmt.Sprintf("envelope-%d", i),
		})
		req.NoError(err)
	}

	all, err := fr.GetMessages(0)
	req.NoError(err)
	req.Len(all, 10)
	req.Equal("envelope-0", all[0].Envelope)

	tail, err := fr.GetMessages(7)
	req.NoError(err)
	req.Len(tail, 3)
	req.Equal("envelope-7", tail[0].Envelope)
	req.Equal(uint64(7), tail[0].Offset)

	none, err := fr.GetMessages(10)
	req.NoError(err)
	req.Empty(none)
}

func TestMessagesSurviveReopen(t *testing.T) {
	req := require.New(t)

	dataFile := "/tmp/meetd_test_file_relay_reopen"
	lockFile := dataFile + "_lock"
	require.NoError(t, os.RemoveAll(dataFile))
	defer os.RemoveAll(dataFile)
	defer os.RemoveAll(lockFile)

	fr, err := NewFileRelay(dataFile, lockFile)
	req.NoError(err)

	sent, err := fr.Send(relay.Message{
		Sender:    "alice@example.com",
		Recipient: "bob@example.com",
		Envelope:  "envelope-0",
	})
	req.NoError(err)
	req.NoError(fr.Close())

	reopened, err := NewFileRelay(dataFile, lockFile)
	req.NoError(err)
	defer reopened.Close()

	msgs, err := reopened.GetMessages(0)
	req.NoError(err)
	req.Len(msgs, 1)
	if diff := cmp.Diff(sent, msgs[0]); diff != "" {
		t.Errorf("message changed across reopen (-sent +read):\n%s", diff)
	}
}
