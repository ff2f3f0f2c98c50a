package mailbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostThenInbox(t *testing.T) {
	mb, err := New(t.TempDir())
	require.NoError(t, err)

	posted, err := mb.Post(Message{
		Sender:    "orchestrator",
		Addressee: "worker-1",
		Type:      TypeTaskAssignment,
		Payload:   json.RawMessage(`{"task_id":"T01"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, posted.ID)

	inbox, err := mb.Inbox("worker-1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, TypeTaskAssignment, inbox[0].Type)

	other, err := mb.Inbox("worker-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBroadcastReachesEveryWorker(t *testing.T) {
	mb, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = mb.Post(Message{Sender: "orchestrator", Addressee: Broadcast, Type: TypeBroadcast})
	require.NoError(t, err)

	for _, worker := range []string{"worker-1", "worker-2"} {
		inbox, err := mb.Inbox(worker)
		require.NoError(t, err)
		assert.Len(t, inbox, 1, "worker %s", worker)
	}
}

func TestMarkReadHidesMessage(t *testing.T) {
	mb, err := New(t.TempDir())
	require.NoError(t, err)

	posted, err := mb.Post(Message{Sender: "worker-1", Addressee: "orchestrator", Type: TypeCompletion})
	require.NoError(t, err)

	require.NoError(t, mb.MarkRead("orchestrator", posted.ID))

	inbox, err := mb.Inbox("orchestrator")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestMarkReadUnknownMessage(t *testing.T) {
	mb, err := New(t.TempDir())
	require.NoError(t, err)
	require.Error(t, mb.MarkRead("orchestrator", "nope"))
}

func TestPostRequiresAddressee(t *testing.T) {
	mb, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = mb.Post(Message{Sender: "x"})
	require.Error(t, err)
}
