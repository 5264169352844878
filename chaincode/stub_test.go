package chaincode

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// fakeStub backs the contract with in-memory world state, private
// collections and per-key history. Un-overridden stub methods panic, which
// is wanted: it flags any stub surface the contract starts using without
// the fake covering it.
type fakeStub struct {
	shim.ChaincodeStubInterface
	world       map[string][]byte
	collections map[string]map[string][]byte
	history     map[string][]*queryresult.KeyModification
	now         time.Time
	txSeq       int
}

func newFakeStub() *fakeStub {
	return &fakeStub{
		world:       map[string][]byte{},
		collections: map[string]map[string][]byte{},
		history:     map[string][]*queryresult.KeyModification{},
		now:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick advances the invocation clock, as if a new block committed.
func (s *fakeStub) tick() {
	s.now = s.now.Add(time.Second)
	s.txSeq++
}

func (s *fakeStub) GetState(key string) ([]byte, error) {
	return s.world[key], nil
}

func (s *fakeStub) PutState(key string, value []byte) error {
	s.world[key] = value
	s.history[key] = append([]*queryresult.KeyModification{{
		TxId:      fmt.Sprintf("tx%d", s.txSeq),
		Value:     value,
		Timestamp: timestamppb.New(s.now),
	}}, s.history[key]...)
	return nil
}

func (s *fakeStub) DelState(key string) error {
	delete(s.world, key)
	s.history[key] = append([]*queryresult.KeyModification{{
		TxId:      fmt.Sprintf("tx%d", s.txSeq),
		Timestamp: timestamppb.New(s.now),
		IsDelete:  true,
	}}, s.history[key]...)
	return nil
}

func (s *fakeStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	var keys []string
	for key := range s.world {
		if key < startKey {
			continue
		}
		if endKey != "" && key >= endKey {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var kvs []*queryresult.KV
	for _, key := range keys {
		kvs = append(kvs, &queryresult.KV{Key: key, Value: s.world[key]})
	}
	return &fakeKVIterator{kvs: kvs}, nil
}

func (s *fakeStub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	return &fakeHistoryIterator{mods: s.history[key]}, nil
}

func (s *fakeStub) GetPrivateData(collection, key string) ([]byte, error) {
	return s.collections[collection][key], nil
}

func (s *fakeStub) PutPrivateData(collection, key string, value []byte) error {
	if s.collections[collection] == nil {
		s.collections[collection] = map[string][]byte{}
	}
	s.collections[collection][key] = value
	return nil
}

func (s *fakeStub) DelPrivateData(collection, key string) error {
	delete(s.collections[collection], key)
	return nil
}

func (s *fakeStub) GetPrivateDataHash(collection, key string) ([]byte, error) {
	value, ok := s.collections[collection][key]
	if !ok {
		return nil, nil
	}
	sum := sha256.Sum256(value)
	return sum[:], nil
}

func (s *fakeStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.now), nil
}

type fakeKVIterator struct {
	kvs []*queryresult.KV
	pos int
}

func (it *fakeKVIterator) HasNext() bool { return it.pos < len(it.kvs) }
func (it *fakeKVIterator) Close() error  { return nil }

func (it *fakeKVIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("past end of iterator")
	}
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

type fakeHistoryIterator struct {
	mods []*queryresult.KeyModification
	pos  int
}

func (it *fakeHistoryIterator) HasNext() bool { return it.pos < len(it.mods) }
func (it *fakeHistoryIterator) Close() error  { return nil }

func (it *fakeHistoryIterator) Next() (*queryresult.KeyModification, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("past end of iterator")
	}
	km := it.mods[it.pos]
	it.pos++
	return km, nil
}

type fakeIdentity struct {
	cid.ClientIdentity
	msp string
}

func (f *fakeIdentity) GetMSPID() (string, error) { return f.msp, nil }

type fakeContext struct {
	contractapi.TransactionContextInterface
	stub *fakeStub
	id   *fakeIdentity
}

func (c *fakeContext) GetStub() shim.ChaincodeStubInterface { return c.stub }
func (c *fakeContext) GetClientIdentity() cid.ClientIdentity {
	return c.id
}

// ctxAs produces a context for an invocation by the given organization,
// sharing the stub's state with every other context built on it.
func ctxAs(stub *fakeStub, msp string) *fakeContext {
	return &fakeContext{stub: stub, id: &fakeIdentity{msp: msp}}
}

func requireDone(t *testing.T, r *Result) {
	t.Helper()
	require.Equal(t, statusDone, r.Message, "reason: %s", r.Reason)
}

func requireErrKind(t *testing.T, r *Result, kind string) {
	t.Helper()
	require.Equal(t, statusError, r.Message)
	require.Equal(t, kind, r.Kind, "reason: %s", r.Reason)
}

func decodeDetails(t *testing.T, r *Result, v any) {
	t.Helper()
	requireDone(t, r)
	require.NoError(t, json.Unmarshal(r.Details, v))
}

// requireAgreement checks the index/record agreement invariant: the set of
// IDs in a partition's index equals the set of asset records stored there.
func requireAgreement(t *testing.T, stub *fakeStub, orgID string) {
	t.Helper()
	coll := stub.collections[orgCollection(orgID)]

	var indexed []string
	if b, ok := coll[assetIndexKey]; ok {
		require.NoError(t, json.Unmarshal(b, &indexed))
	}

	var recorded []string
	for key := range coll {
		if key == assetIndexKey {
			continue
		}
		recorded = append(recorded, key[len(assetKeyPrefix):])
	}
	require.ElementsMatch(t, indexed, recorded, "index and records of %s disagree", orgID)
}
