package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"triage/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisCache_SetGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, cache.Set(ctx, "k", payload{Name: "a", Count: 2}, time.Minute))

	var got payload
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, "k"))
	found, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found, "deleted key should be a miss, not an error")
}

func TestRedisCache_SetExpires(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short", "v", time.Second))
	mr.FastForward(2 * time.Second)

	exists, err := cache.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_SetRejectsOversizedValue(t *testing.T) {
	cache, _ := setupTestRedis(t)
	big := strings.Repeat("x", 11*1024*1024)
	err := cache.Set(context.Background(), "big", big, 0)
	require.Error(t, err)
}

func TestRedisCache_ListOperations(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	list, err := cache.ListRange(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, cache.ListAddUnique(ctx, "l", "a", "b"))
	require.NoError(t, cache.ListAddUnique(ctx, "l", "b", "c"))

	list, err = cache.ListRange(ctx, "l")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, list)
	assert.Len(t, list, 3, "duplicates must not be appended twice")

	require.NoError(t, cache.ListRemove(ctx, "l", "a"))
	list, err = cache.ListRange(ctx, "l")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, list)
}

func TestRedisCache_ConnectionFailure(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()
	assert.Error(t, cache.Ping(context.Background()))
}

func TestGetAuditCacheKey(t *testing.T) {
	assert.Equal(t, "audit:abc", GetAuditCacheKey("abc"))
}

func TestRedisWhitelistStore_AddListRemove(t *testing.T) {
	cache, _ := setupTestRedis(t)
	store := NewRedisWhitelistStore(cache, 0, 0, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, core.IndicatorIP, "10.0.0.1", " 10.0.0.2 "))
	require.NoError(t, store.Add(ctx, core.IndicatorDomain, "*.example.com"))

	ips, err := store.List(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, ips)

	domains, err := store.Whitelist(ctx, core.IndicatorDomain)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, domains)

	require.NoError(t, store.Remove(ctx, core.IndicatorIP, "10.0.0.1"))
	ips, err = store.Whitelist(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.2"}, ips)
}

func TestRedisWhitelistStore_StoresUnderWhitelistKey(t *testing.T) {
	cache, mr := setupTestRedis(t)
	store := NewRedisWhitelistStore(cache, 0, 0, nil)

	require.NoError(t, store.Add(context.Background(), core.IndicatorHash, "d41d8cd98f00b204e9800998ecf8427e"))

	members, err := mr.List("global_whitelist_hashes")
	require.NoError(t, err)
	assert.Equal(t, []string{"d41d8cd98f00b204e9800998ecf8427e"}, members)
}

func TestRedisWhitelistStore_RejectsInvalidInput(t *testing.T) {
	cache, _ := setupTestRedis(t)
	store := NewRedisWhitelistStore(cache, 0, 0, nil)
	ctx := context.Background()

	err := store.Add(ctx, core.IndicatorIP, "not-an-ip")
	assert.ErrorIs(t, err, core.ErrValidation)

	err = store.Add(ctx, core.IndicatorCountries, "DE")
	assert.ErrorIs(t, err, ErrInvalidCategory)

	_, err = store.List(ctx, core.IndicatorOther)
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestRedisWhitelistStore_CachesUntilInvalidated(t *testing.T) {
	cache, mr := setupTestRedis(t)
	store := NewRedisWhitelistStore(cache, 8, time.Hour, nil)
	ctx := context.Background()

	_, err := mr.Push("global_whitelist_ips", "10.0.0.1")
	require.NoError(t, err)

	list, err := store.Whitelist(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, list)

	// Written behind the store's back: the cached list is still served
	_, err = mr.Push("global_whitelist_ips", "10.0.0.2")
	require.NoError(t, err)
	list, err = store.Whitelist(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, list)

	store.Invalidate()
	list, err = store.Whitelist(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, list)
}

func TestRedisWhitelistStore_AddInvalidatesCache(t *testing.T) {
	cache, _ := setupTestRedis(t)
	store := NewRedisWhitelistStore(cache, 8, time.Hour, nil)
	ctx := context.Background()

	list, err := store.Whitelist(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, store.Add(ctx, core.IndicatorIP, "8.8.8.8"))
	list, err = store.Whitelist(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, []string{"8.8.8.8"}, list)
}

func TestRedisWhitelistStore_CaseWhitelisted(t *testing.T) {
	cache, _ := setupTestRedis(t)
	store := NewRedisWhitelistStore(cache, 0, 0, nil)
	ctx := context.Background()
	cf := newTestCase(t)

	whitelisted, err := cf.CheckWhitelist(ctx, store)
	require.NoError(t, err)
	assert.False(t, whitelisted)

	require.NoError(t, store.Add(ctx, core.IndicatorIP, "8.8.8.8"))
	whitelisted, err = cf.CheckWhitelist(ctx, store)
	require.NoError(t, err)
	assert.True(t, whitelisted)
}

func TestRedisWhitelistStore_CanonicalizesIPs(t *testing.T) {
	cache, _ := setupTestRedis(t)
	store := NewRedisWhitelistStore(cache, 0, 0, nil)
	ctx := context.Background()
	cf := newFlowCase(t, "2001:DB8::1", "8.8.8.8")

	require.NoError(t, store.Add(ctx, core.IndicatorIP, "2001:DB8::1"))
	list, err := store.List(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, []string{"2001:db8::1"}, list)

	whitelisted, err := cf.CheckWhitelist(ctx, store)
	require.NoError(t, err)
	assert.True(t, whitelisted)
}

func TestRedisWhitelistStore_BackendDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	store := NewRedisWhitelistStore(cache, 0, 0, nil)
	mr.Close()

	_, err := newTestCase(t).CheckWhitelist(context.Background(), store)
	require.Error(t, err)
}

func TestRedisAuditSink_AppendAndList(t *testing.T) {
	cache, _ := setupTestRedis(t)
	sink := NewRedisAuditSink(cache, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	entry := pendingEntry(t, "enrich", 0)
	require.NoError(t, sink.Append(ctx, "case-1", entry))
	entry.SetSuccessful("", map[string]interface{}{"hits": "3"}, "INC-42")
	require.NoError(t, sink.Append(ctx, "case-1", entry))

	records, err := sink.ListAudit(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, records, 2, "every write is kept, pending entries included")

	assert.False(t, records[0].StageDone)
	assert.True(t, records[1].StageDone)
	assert.Equal(t, "case-1", records[1].CaseID)
	assert.Equal(t, "INC-42", records[1].RelatedTicketNumber)
	assert.Equal(t, core.DefaultSuccessMessage, records[1].Message)
	assert.True(t, entry.StartTime.Equal(records[1].StartTime))

	rebuilt := records[1].AuditLog()
	assert.True(t, rebuilt.StageDone())
	assert.Equal(t, entry.Key(), rebuilt.Key())
}

func TestRedisAuditSink_SkipsUndecodableEntries(t *testing.T) {
	cache, mr := setupTestRedis(t)
	sink := NewRedisAuditSink(cache, nil)
	ctx := context.Background()

	_, err := mr.Push(GetAuditCacheKey("case-2"), "\xc1garbage")
	require.NoError(t, err)
	require.NoError(t, sink.Append(ctx, "case-2", pendingEntry(t, "enrich", 1)))

	records, err := sink.ListAudit(ctx, "case-2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Stage)
}

func TestRedisAuditSink_NilEntry(t *testing.T) {
	cache, _ := setupTestRedis(t)
	err := NewRedisAuditSink(cache, nil).Append(context.Background(), "c", nil)
	assert.True(t, errors.Is(err, core.ErrType))
}

func TestRedisAuditSink_ThroughCaseFile(t *testing.T) {
	cache, _ := setupTestRedis(t)
	sink := NewRedisAuditSink(cache, nil)
	ctx := context.Background()
	cf := newTestCase(t)

	entry := pendingEntry(t, "notify", 0)
	require.NoError(t, cf.UpdateAudit(ctx, entry, sink))
	entry.SetError(false, "", nil, errors.New("smtp timeout"))
	require.NoError(t, cf.UpdateAudit(ctx, entry, sink))

	records, err := sink.ListAudit(ctx, cf.UUID())
	require.NoError(t, err)
	require.Len(t, records, 2)
	last := records[1]
	assert.True(t, last.RequestRetry)
	assert.Equal(t, "smtp timeout", last.Exception)
	assert.Contains(t, last.ResultData, core.ResultDataDetectionName)
}
