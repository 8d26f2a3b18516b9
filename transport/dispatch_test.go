package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/mock/gomock"

	"mini-bidi/codec"
	"mini-bidi/connection"
	"mini-bidi/connection/mock"
	"mini-bidi/protocol"
)

// mockRemote scripts a MockConnection: every command sent is answered by
// reply, whose frames are fed back through DataReceived.
type mockRemote struct {
	conn *mock.MockConnection
	data chan []byte

	mu   sync.Mutex
	ids  []int64
	once sync.Once
}

func newMockRemote(t *testing.T, reply func(id int64, method string) []byte) *mockRemote {
	t.Helper()
	ctrl := gomock.NewController(t)
	r := &mockRemote{conn: mock.NewMockConnection(ctrl), data: make(chan []byte, 128)}

	r.conn.EXPECT().OnLog(gomock.Any()).AnyTimes()
	r.conn.EXPECT().Start(gomock.Any(), "ws://browser/session").Return(nil)
	r.conn.EXPECT().DataReceived().Return((<-chan []byte)(r.data)).AnyTimes()
	r.conn.EXPECT().Err().Return(nil).AnyTimes()
	r.conn.EXPECT().Stop().DoAndReturn(func() error {
		r.once.Do(func() { close(r.data) })
		return nil
	}).AnyTimes()
	r.conn.EXPECT().SendData(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, data []byte) error {
		cmd := gjson.ParseBytes(data)
		id := cmd.Get("id").Int()
		r.mu.Lock()
		r.ids = append(r.ids, id)
		r.mu.Unlock()
		if frame := reply(id, cmd.Get("method").Str); frame != nil {
			r.data <- frame
		}
		return nil
	}).AnyTimes()
	return r
}

func (r *mockRemote) start(t *testing.T, opts Options) *Transport {
	t.Helper()
	tr := New(r.conn, nil, opts)
	require.NoError(t, tr.Start(context.Background(), "ws://browser/session"))
	t.Cleanup(func() {
		_ = tr.Stop()
		<-tr.Done()
	})
	return tr
}

func success(id int64) []byte {
	return []byte(fmt.Sprintf(`{"type":"success","id":%d,"result":{"ready":true,"message":""}}`, id))
}

func TestIDsStrictlyIncreasing(t *testing.T) {
	remote := newMockRemote(t, func(id int64, _ string) []byte { return success(id) })
	tr := remote.start(t, Options{})

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.ExecuteCommand(context.Background(), "session.status", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	remote.mu.Lock()
	ids := append([]int64(nil), remote.ids...)
	remote.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	require.Len(t, ids, n)
	for i, id := range ids {
		assert.EqualValues(t, i+1, id)
	}

	// Ids keep growing after the burst.
	_, err := tr.ExecuteCommand(context.Background(), "session.status", nil)
	require.NoError(t, err)
	remote.mu.Lock()
	assert.EqualValues(t, n+1, remote.ids[len(remote.ids)-1])
	remote.mu.Unlock()
}

func TestMalformedResponseRoutedToCaller(t *testing.T) {
	remote := newMockRemote(t, func(id int64, method string) []byte {
		switch method {
		case "test.noResult":
			return []byte(fmt.Sprintf(`{"type":"success","id":%d}`, id))
		case "test.badError":
			return []byte(fmt.Sprintf(`{"type":"error","id":%d,"error":42}`, id))
		case "test.wrongShape":
			return []byte(fmt.Sprintf(`{"type":"success","id":%d,"result":{"ready":"yes"}}`, id))
		}
		return success(id)
	})
	tr := remote.start(t, Options{Timeout: time.Second})

	_, err := tr.ExecuteCommand(context.Background(), "test.noResult", nil)
	var me *protocol.MessageError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, protocol.MsgTypeResponse, me.Header.MsgType)
	var de *codec.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "result", de.Field)

	_, err = tr.ExecuteCommand(context.Background(), "test.badError", nil)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "error", de.Field)

	_, err = Execute(context.Background(), tr, "test.wrongShape", nil, statusShape)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "ready", de.Field)
	assert.NotErrorIs(t, err, ErrTimeout)

	res, err := Execute(context.Background(), tr, "session.status", nil, statusShape)
	require.NoError(t, err)
	assert.True(t, res.Value.Ready)
}

func TestUnknownEnvelopeTypeRoutedToCaller(t *testing.T) {
	remote := newMockRemote(t, func(id int64, method string) []byte {
		if method == "script.evaluate" {
			return []byte(fmt.Sprintf(`{"type":"exception","id":%d,"error":"javascript error","message":"boom"}`, id))
		}
		return success(id)
	})
	tr := remote.start(t, Options{Timeout: 5 * time.Second})

	began := time.Now()
	_, err := tr.ExecuteCommand(context.Background(), "script.evaluate", nil)
	require.ErrorIs(t, err, protocol.ErrMalformedMessage)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(began), time.Second)
	var me *protocol.MessageError
	require.ErrorAs(t, err, &me)
	assert.Contains(t, err.Error(), `unknown type "exception"`)
	assert.Zero(t, tr.Pending())

	res, err := Execute(context.Background(), tr, "session.status", nil, statusShape)
	require.NoError(t, err)
	assert.True(t, res.Value.Ready)
}

func TestSendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock.NewMockConnection(ctrl)
	data := make(chan []byte)
	var once sync.Once

	conn.EXPECT().OnLog(gomock.Any())
	conn.EXPECT().Start(gomock.Any(), gomock.Any()).Return(nil)
	conn.EXPECT().DataReceived().Return((<-chan []byte)(data))
	conn.EXPECT().Err().Return(nil).AnyTimes()
	conn.EXPECT().Stop().DoAndReturn(func() error {
		once.Do(func() { close(data) })
		return nil
	})
	gomock.InOrder(
		conn.EXPECT().SendData(gomock.Any(), gomock.Any()).Return(fmt.Errorf("write: %w", connection.ErrClosed)),
		conn.EXPECT().SendData(gomock.Any(), gomock.Any()).Return(errors.New("broken pipe")),
	)

	tr := New(conn, nil, Options{})
	require.NoError(t, tr.Start(context.Background(), "ws://browser/session"))
	defer func() {
		require.NoError(t, tr.Stop())
		<-tr.Done()
	}()

	_, err := tr.ExecuteCommand(context.Background(), "session.status", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = tr.ExecuteCommand(context.Background(), "session.status", nil)
	assert.ErrorContains(t, err, "broken pipe")
	assert.Zero(t, tr.Pending())
}

func TestStartFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock.NewMockConnection(ctrl)
	conn.EXPECT().OnLog(gomock.Any())
	conn.EXPECT().Start(gomock.Any(), "ws://nowhere").Return(errors.New("dial refused"))
	conn.EXPECT().Stop().Return(nil)

	tr := New(conn, nil, Options{})
	err := tr.Start(context.Background(), "ws://nowhere")
	require.ErrorContains(t, err, "dial refused")
	assert.Equal(t, StateIdle, tr.State())
	require.NoError(t, tr.Stop())
	<-tr.Done()
}
