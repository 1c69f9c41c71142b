package mongo

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/common"
)

func TestSplitWriteConcern(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantURL string
		want    *mgo.Safe
		wantErr bool
	}{
		{
			name:    "defaults only",
			in:      "mongodb://localhost/?journal=true&w=1",
			wantURL: "mongodb://localhost/",
			want:    &mgo.Safe{W: 1, J: true},
		},
		{
			name:    "other options kept",
			in:      "mongodb://localhost/?journal=false&maxPoolSize=5&w=majority",
			wantURL: "mongodb://localhost/?maxPoolSize=5",
			want:    &mgo.Safe{WMode: "majority"},
		},
		{
			name:    "no query",
			in:      "mongodb://localhost/",
			wantURL: "mongodb://localhost/",
			want:    &mgo.Safe{},
		},
		{
			name:    "bad journal",
			in:      "mongodb://localhost/?journal=maybe",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL, got, err := splitWriteConcern(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, gotURL)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentConversion(t *testing.T) {
	id := bson.NewObjectId()
	m, err := toBSON(tenantdb.Document{"id": "ignored", "handle": "alice"}, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": id, "handle": "alice"}, m)

	doc := fromBSON(m)
	assert.Equal(t, tenantdb.Document{"id": id.Hex(), "handle": "alice"}, doc)

	_, err = toBSON(tenantdb.Document{}, "nope")
	assert.ErrorIs(t, err, common.ErrInvalidID)
}

func TestToQuery(t *testing.T) {
	id := bson.NewObjectId()
	q, err := toQuery(map[string]interface{}{"id": id.Hex(), "admin": true})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": id, "admin": true}, q)

	_, err = toQuery(map[string]interface{}{"id": 42})
	assert.Error(t, err)
}

func TestConn_MonitorTerminatesAfterRepeatedPingFailures(t *testing.T) {
	c := newConn(nil, zap.NewNop())
	var pings atomic.Int32
	go c.monitor(func() error {
		pings.Add(1)
		return errors.New("no reachable servers")
	}, time.Millisecond, 3)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("connection not terminated after failed pings")
	}
	assert.Equal(t, int32(3), pings.Load())
	assert.NoError(t, c.Close(), "Close after termination is a no-op")
}

func TestConn_MonitorToleratesIntermittentFailures(t *testing.T) {
	c := newConn(nil, zap.NewNop())
	var pings atomic.Int32
	go c.monitor(func() error {
		// Two failures then a success: never three in a row.
		if pings.Add(1)%3 == 0 {
			return nil
		}
		return errors.New("timeout")
	}, time.Millisecond, 3)

	require.Eventually(t, func() bool { return pings.Load() >= 20 }, time.Second, time.Millisecond)
	select {
	case <-c.Done():
		t.Fatal("connection terminated despite successful pings")
	default:
	}
	require.NoError(t, c.Close())
	<-c.Done()
}
