package oracle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testToken = "TOKEN123"

// kbase fakes the three services on one server.
type kbase struct {
	t       *testing.T
	objects map[string]string // "ws/name" -> object JSON
	handles map[string]string // hid -> handle JSON
	nodes   map[string]string // node id -> node JSON
}

func (k *kbase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/ws":
		assert.Equal(k.t, testToken, r.Header.Get("Authorization"))
		var req rpcRequest
		require.NoError(k.t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(k.t, "Workspace.get_objects2", req.Method)
		assert.Equal(k.t, "1.1", req.Version)
		spec := req.Params[0].(map[string]interface{})["objects"].([]interface{})[0].(map[string]interface{})
		key := spec["workspace"].(string) + "/" + spec["name"].(string)
		obj, ok := k.objects[key]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"version":"1.1","error":{"name":"JSONRPCError","code":-32500,"message":"No object with name `+spec["name"].(string)+` exists in workspace 12","error":"us.kbase.workspace.database.exceptions.NoSuchObjectException"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"version":"1.1","result":[{"data":[`+obj+`]}]}`)
	case r.URL.Path == "/handle":
		var req struct {
			Method string     `json:"method"`
			Params [][]string `json:"params"`
		}
		require.NoError(k.t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(k.t, "AbstractHandle.hids_to_handles", req.Method)
		var found []string
		for _, hid := range req.Params[0] {
			if h, ok := k.handles[hid]; ok {
				found = append(found, h)
			}
		}
		_, _ = io.WriteString(w, `{"version":"1.1","result":[[`+strings.Join(found, ",")+`]]}`)
	case strings.HasPrefix(r.URL.Path, "/shock/node/"):
		assert.Equal(k.t, "OAuth "+testToken, r.Header.Get("Authorization"))
		id := strings.TrimPrefix(r.URL.Path, "/shock/node/")
		node, ok := k.nodes[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"status":404,"data":null,"error":["Node not found"]}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":200,"data":`+node+`,"error":null}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func readsObject(version int) string {
	return `{"info":[3,"reads.fastq","KBaseFile.SingleEndLibrary-2.1","2024-03-01T09:00:00+0000",` +
		strconv.Itoa(version) + `,"kbasetest",12,"Blastococcus_sp_FA1_kbasetest","abc",512,{"source":"JGI"}],` +
		`"data":{"lib":{"file":{"hid":"KBH_7","file_name":"reads.fastq","id":"node-1"},"size":1024},"sequencing_tech":"Illumina"}}`
}

func newTestVerifier(t *testing.T, k *kbase) *Verifier {
	t.Helper()
	k.t = t
	srv := httptest.NewServer(k)
	t.Cleanup(srv.Close)
	return NewVerifier(Config{
		WorkspaceURL: srv.URL + "/ws",
		HandleURL:    srv.URL + "/handle",
		ShockURL:     srv.URL + "/shock/",
		Token:        testToken,
		RetryMax:     1,
	}, zaptest.NewLogger(t))
}

func TestVerifyPushed(t *testing.T) {
	ctx := context.Background()
	good := func() *kbase {
		return &kbase{
			objects: map[string]string{"Blastococcus_sp_FA1_kbasetest/reads.fastq": readsObject(1)},
			handles: map[string]string{"KBH_7": `{"hid":"KBH_7","id":"node-1","url":"https://shock","type":"shock","file_name":"reads.fastq","remote_md5":"5d41402a"}`},
			nodes:   map[string]string{"node-1": `{"id":"node-1","file":{"name":"reads.fastq","size":1024,"checksum":{"md5":"5d41402a"}}}`},
		}
	}

	t.Run("object handle and node agree", func(t *testing.T) {
		v := newTestVerifier(t, good())
		obj, err := v.VerifyPushed(ctx, "Blastococcus_sp_FA1_kbasetest", "reads.fastq", 1)
		require.NoError(t, err)
		assert.Equal(t, "KBaseFile.SingleEndLibrary-2.1", obj.Info.Type)
		assert.Equal(t, "JGI", obj.Info.Meta["source"])
		require.Len(t, obj.Nodes, 1)
		assert.Equal(t, "5d41402a", obj.Nodes[0].MD5())
		assert.Equal(t, "node-1", obj.Handles[0].NodeID)
	})

	t.Run("wrong version", func(t *testing.T) {
		v := newTestVerifier(t, good())
		_, err := v.VerifyPushed(ctx, "Blastococcus_sp_FA1_kbasetest", "reads.fastq", 2)
		assert.ErrorContains(t, err, "expected 2")
	})

	t.Run("missing object", func(t *testing.T) {
		v := newTestVerifier(t, good())
		_, err := v.VerifyPushed(ctx, "Blastococcus_sp_FA1_kbasetest", "contigs.fasta", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown handle", func(t *testing.T) {
		k := good()
		k.handles = nil
		v := newTestVerifier(t, k)
		_, err := v.VerifyPushed(ctx, "Blastococcus_sp_FA1_kbasetest", "reads.fastq", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing node", func(t *testing.T) {
		k := good()
		k.nodes = nil
		v := newTestVerifier(t, k)
		_, err := v.VerifyPushed(ctx, "Blastococcus_sp_FA1_kbasetest", "reads.fastq", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		k := good()
		k.nodes["node-1"] = `{"id":"node-1","file":{"name":"reads.fastq","size":1024,"checksum":{"md5":"ffff"}}}`
		v := newTestVerifier(t, k)
		_, err := v.VerifyPushed(ctx, "Blastococcus_sp_FA1_kbasetest", "reads.fastq", 0)
		assert.ErrorContains(t, err, "does not match")
	})
}

func TestVerifyAbsent(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t, &kbase{objects: map[string]string{"ws/reads.fastq": readsObject(1)}})

	assert.NoError(t, v.VerifyAbsent(ctx, "ws", "notes.pdf"))
	assert.ErrorContains(t, v.VerifyAbsent(ctx, "ws", "reads.fastq"), "was rejected")
}

func TestHandleIDs(t *testing.T) {
	obj := Object{Data: map[string]interface{}{
		"handle": map[string]interface{}{"hid": "KBH_1"},
		"lib1":   map[string]interface{}{"file": map[string]interface{}{"hid": "KBH_2"}},
		"reads":  []interface{}{map[string]interface{}{"hid": "KBH_3"}},
		"hid":    42.0,
	}}
	assert.ElementsMatch(t, []string{"KBH_1", "KBH_2", "KBH_3"}, obj.HandleIDs())
}

func TestObjectInfoShape(t *testing.T) {
	var info ObjectInfo
	assert.Error(t, json.Unmarshal([]byte(`[1,"x"]`), &info))
}
