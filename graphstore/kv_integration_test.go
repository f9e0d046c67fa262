//go:build integration

package graphstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/reosfire/xywire-sub000/natsclient"
)

type KVStoreIntegrationSuite struct {
	suite.Suite
	tc     *natsclient.TestClient
	store  *KVStore
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *KVStoreIntegrationSuite) SetupSuite() {
	s.tc = natsclient.NewTestClient(s.T(), natsclient.WithJetStream(), natsclient.WithKV())
}

func (s *KVStoreIntegrationSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)
	_ = s.tc.Client.DeleteKeyValueBucket(s.ctx, DefaultBucket)

	var err error
	s.store, err = NewKVStore(s.ctx, s.tc.Client, KVOptions{Compress: true})
	s.Require().NoError(err)
}

func (s *KVStoreIntegrationSuite) TearDownTest() {
	s.cancel()
}

func (s *KVStoreIntegrationSuite) TestSaveLoadDelete() {
	saved, err := s.store.Save(s.ctx, "main", sampleGraph())
	s.Require().NoError(err)
	s.Equal(1, saved.Version)

	loaded, err := s.store.Load(s.ctx, "main")
	s.Require().NoError(err)
	s.Equal(saved.ID, loaded.ID)
	s.Equal(sampleGraph(), loaded.Graph)

	again, err := s.store.Save(s.ctx, "main", sampleGraph())
	s.Require().NoError(err)
	s.Equal(2, again.Version)

	names, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"main"}, names)

	s.Require().NoError(s.store.Delete(s.ctx, "main"))
	_, err = s.store.Load(s.ctx, "main")
	s.ErrorIs(err, ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, "main"), ErrNotFound)
}

func (s *KVStoreIntegrationSuite) TestUpdateDetectsConflicts() {
	doc, err := s.store.Save(s.ctx, "shared", sampleGraph())
	s.Require().NoError(err)

	a, b := *doc, *doc
	_, err = s.store.Update(s.ctx, &a)
	s.Require().NoError(err)
	_, err = s.store.Update(s.ctx, &b)
	s.ErrorIs(err, ErrVersionConflict)
}

func (s *KVStoreIntegrationSuite) TestConcurrentSavesAllLand() {
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Save(s.ctx, "busy", sampleGraph())
			s.NoError(err)
		}()
	}
	wg.Wait()

	doc, err := s.store.Load(s.ctx, "busy")
	s.Require().NoError(err)
	s.Equal(4, doc.Version)
}

func (s *KVStoreIntegrationSuite) TestWatchStreamsUpdates() {
	_, err := s.store.Save(s.ctx, "live", sampleGraph())
	s.Require().NoError(err)

	watchCtx, stop := context.WithCancel(s.ctx)
	updates, err := s.store.Watch(watchCtx, "live")
	s.Require().NoError(err)

	changed := sampleGraph()
	changed.AddNode("RainbowEffect", nil)
	_, err = s.store.Save(s.ctx, "live", changed)
	s.Require().NoError(err)

	select {
	case g := <-updates:
		s.Len(g.Nodes, 3)
	case <-time.After(5 * time.Second):
		s.Fail("no update received")
	}

	stop()
	s.Eventually(func() bool {
		_, open := <-updates
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKVStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(KVStoreIntegrationSuite))
}
