package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/pkg/logger"
	"github.com/sobremidia/player/pkg/model"
)

type StoreTestSuite struct {
	suite.Suite

	ctx   context.Context
	store *store.Store
}

func (suite *StoreTestSuite) SetupTest() {
	suite.ctx = context.Background()

	s, err := store.OpenInMemory(logger.NewNop())
	suite.Require().NoError(err)
	suite.store = s
}

func (suite *StoreTestSuite) playlist(id string, version int64, itemIDs ...string) *model.Playlist {
	p := &model.Playlist{
		ID:                id,
		Name:              "lobby loop",
		Version:           version,
		Orientation:       "landscape",
		HeartbeatInterval: 60,
	}
	for i, itemID := range itemIDs {
		p.Items = append(p.Items, model.MediaItem{
			ID:         itemID,
			Name:       itemID,
			Type:       model.MediaTypeImage,
			RemoteURL:  "https://cdn.example.com/" + itemID,
			Hash:       "deadbeef",
			OrderIndex: i,
		})
	}
	return p
}

func (suite *StoreTestSuite) TestActivePlaylist_EmptyCache() {
	p, err := suite.store.ActivePlaylist(suite.ctx)
	suite.Require().NoError(err)
	suite.Nil(p)
}

func (suite *StoreTestSuite) TestReplacePlaylist_RoundTrip() {
	err := suite.store.ReplacePlaylist(suite.ctx, suite.playlist("pl-1", 3, "m1", "m2"))
	suite.Require().NoError(err)

	p, err := suite.store.ActivePlaylist(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().NotNil(p)
	suite.Equal("pl-1", p.ID)
	suite.Equal(int64(3), p.Version)
	suite.Require().Len(p.Items, 2)
	suite.Equal("m1", p.Items[0].ID)
	suite.Equal("m2", p.Items[1].ID)
}

func (suite *StoreTestSuite) TestReplacePlaylist_PurgesPreviousSync() {
	suite.Require().NoError(suite.store.ReplacePlaylist(suite.ctx, suite.playlist("pl-1", 1, "m1", "m2", "m3")))
	suite.Require().NoError(suite.store.ReplacePlaylist(suite.ctx, suite.playlist("pl-2", 1, "m9")))

	p, err := suite.store.ActivePlaylist(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().NotNil(p)
	suite.Equal("pl-2", p.ID)
	suite.Require().Len(p.Items, 1)
	suite.Equal("m9", p.Items[0].ID)

	// No ghost media from the old playlist may survive the swap.
	paths, err := suite.store.LocalPaths(suite.ctx)
	suite.Require().NoError(err)
	suite.NotContains(paths, "m1")
}

func (suite *StoreTestSuite) TestReplacePlaylist_SameMediaScheduledTwice() {
	// A playlist may repeat a media id at different positions.
	suite.Require().NoError(suite.store.ReplacePlaylist(suite.ctx, suite.playlist("pl-1", 1, "m1", "m2", "m1")))

	p, err := suite.store.ActivePlaylist(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().NotNil(p)
	suite.Require().Len(p.Items, 3)
	suite.Equal("m1", p.Items[0].ID)
	suite.Equal("m1", p.Items[2].ID)

	// Registering the payload once covers every entry of that media.
	suite.Require().NoError(suite.store.UpdateMediaLocalPath(suite.ctx, "m1", "/data/media_content/m1.dat"))
	p, err = suite.store.ActivePlaylist(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal("/data/media_content/m1.dat", p.Items[0].LocalPath)
	suite.Equal("/data/media_content/m1.dat", p.Items[2].LocalPath)
}

func (suite *StoreTestSuite) TestUpdateMediaLocalPath() {
	suite.Require().NoError(suite.store.ReplacePlaylist(suite.ctx, suite.playlist("pl-1", 1, "m1")))

	suite.Require().NoError(suite.store.UpdateMediaLocalPath(suite.ctx, "m1", "/data/media_content/m1.dat"))

	p, err := suite.store.ActivePlaylist(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal("/data/media_content/m1.dat", p.Items[0].LocalPath)
}

func (suite *StoreTestSuite) TestPlayLogBuffer() {
	log := &model.PlaybackLog{
		ScreenID:        "screen-7",
		MediaID:         "m1",
		PlaylistID:      "pl-1",
		DurationSeconds: 15,
		Status:          "completed",
		StartedAt:       time.Now().UTC(),
	}
	suite.Require().NoError(suite.store.InsertPlayLog(suite.ctx, log))

	logs, ids, err := suite.store.PendingPlayLogs(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(logs, 1)
	suite.Equal("m1", logs[0].MediaID)

	suite.Require().NoError(suite.store.DeletePlayLogs(suite.ctx, ids))

	logs, _, err = suite.store.PendingPlayLogs(suite.ctx)
	suite.Require().NoError(err)
	suite.Empty(logs)
}

func (suite *StoreTestSuite) TestInsertPlayLog_RejectsGarbage() {
	err := suite.store.InsertPlayLog(suite.ctx, &model.PlaybackLog{ScreenID: "screen-7"})
	suite.Error(err)
}

func (suite *StoreTestSuite) TestClockOffsetRoundTrip() {
	_, ok, err := suite.store.LoadClockOffset()
	suite.Require().NoError(err)
	suite.False(ok)

	suite.Require().NoError(suite.store.SaveClockOffset(-90 * time.Second))

	offset, ok, err := suite.store.LoadClockOffset()
	suite.Require().NoError(err)
	suite.True(ok)
	suite.Equal(-90*time.Second, offset)
}

func (suite *StoreTestSuite) TestDirtyShutdownFlag() {
	suite.False(suite.store.WasDirtyShutdown())

	suite.Require().NoError(suite.store.MarkDirtyShutdown())
	suite.True(suite.store.WasDirtyShutdown())

	suite.Require().NoError(suite.store.ClearDirtyShutdown())
	suite.False(suite.store.WasDirtyShutdown())
}

func (suite *StoreTestSuite) TestConfigSignature() {
	suite.Empty(suite.store.ConfigSignature())
	suite.Require().NoError(suite.store.SaveConfigSignature("abc123"))
	suite.Equal("abc123", suite.store.ConfigSignature())
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
