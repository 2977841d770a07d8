package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/creator-insights/internal/db"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/platform"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewRepository(gdb)
}

func TestCreateAccount_Duplicate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc, err := repo.CreateAccount(ctx, "creator", "individual")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if acc.ID == "" {
		t.Fatal("expected generated id")
	}
	if _, err := repo.CreateAccount(ctx, "creator", "individual"); !errors.Is(err, ErrAccountAlreadyExists) {
		t.Fatalf("expected ErrAccountAlreadyExists, got %v", err)
	}
}

func TestGetAccount_Missing(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetAccount(context.Background(), "nope"); !errors.Is(err, ErrAccountDoesNotExist) {
		t.Fatalf("expected ErrAccountDoesNotExist, got %v", err)
	}
	if _, err := repo.GetAccountByUsername(context.Background(), "nope"); !errors.Is(err, ErrAccountDoesNotExist) {
		t.Fatalf("expected ErrAccountDoesNotExist, got %v", err)
	}
}

func TestSetPrivateMetrics(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, _ := repo.CreateAccount(ctx, "creator", "")

	if _, err := repo.SetPrivateMetrics(ctx, acc.ID, platform.Instagram, []string{"reach", " ", "audience_city"}); err != nil {
		t.Fatalf("SetPrivateMetrics: %v", err)
	}
	loaded, err := repo.GetAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	got := loaded.PrivateFor("instagram")
	if len(got) != 2 || got[0] != "reach" || got[1] != "audience_city" {
		t.Fatalf("unexpected private metrics %v", got)
	}

	if _, err := repo.SetPrivateMetrics(ctx, acc.ID, platform.Instagram, nil); err != nil {
		t.Fatalf("SetPrivateMetrics clear: %v", err)
	}
	loaded, _ = repo.GetAccount(ctx, acc.ID)
	if len(loaded.PrivateFor("instagram")) != 0 {
		t.Fatalf("expected cleared list, got %v", loaded.PrivateFor("instagram"))
	}
}

func TestHandles_CreateListAndBulkUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, _ := repo.CreateAccount(ctx, "creator", "")

	err := repo.CreateHandles(ctx, []*models.SocialMediaHandle{
		{AccountID: acc.ID, Platform: "youtube", HandleUID: "UC1", Username: "one"},
		{AccountID: acc.ID, Platform: "instagram", HandleUID: "17841", Username: "two"},
	})
	if err != nil {
		t.Fatalf("CreateHandles: %v", err)
	}

	yt, err := repo.ListHandles(ctx, acc.ID, platform.YouTube)
	if err != nil || len(yt) != 1 || yt[0].HandleUID != "UC1" {
		t.Fatalf("ListHandles(youtube) = %+v, %v", yt, err)
	}
	all, _ := repo.ListHandles(ctx, acc.ID, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(all))
	}

	yt[0].AccessToken = "fresh"
	yt[0].FollowerCount = 42
	if err := repo.BulkUpdateHandles(ctx, yt); err != nil {
		t.Fatalf("BulkUpdateHandles: %v", err)
	}
	h, err := repo.GetHandle(ctx, yt[0].ID)
	if err != nil || h.AccessToken != "fresh" || h.FollowerCount != 42 {
		t.Fatalf("GetHandle = %+v, %v", h, err)
	}

	byUID, err := repo.HandlesByUID(ctx, platform.YouTube, []string{"UC1", "UC2"})
	if err != nil || len(byUID) != 1 {
		t.Fatalf("HandlesByUID = %v, %v", byUID, err)
	}

	ids, err := repo.ListAccountIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != acc.ID {
		t.Fatalf("ListAccountIDs = %v, %v", ids, err)
	}
}

func TestCreateHandles_DuplicateUID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, _ := repo.CreateAccount(ctx, "creator", "")

	h := &models.SocialMediaHandle{AccountID: acc.ID, Platform: "youtube", HandleUID: "UC1"}
	if err := repo.CreateHandles(ctx, []*models.SocialMediaHandle{h}); err != nil {
		t.Fatalf("CreateHandles: %v", err)
	}
	dup := &models.SocialMediaHandle{AccountID: acc.ID, Platform: "youtube", HandleUID: "UC1"}
	if err := repo.CreateHandles(ctx, []*models.SocialMediaHandle{dup}); !errors.Is(err, ErrHandleAlreadyExists) {
		t.Fatalf("expected ErrHandleAlreadyExists, got %v", err)
	}
}

func TestDisableHandle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, _ := repo.CreateAccount(ctx, "creator", "")
	h := &models.SocialMediaHandle{AccountID: acc.ID, Platform: "youtube", HandleUID: "UC1"}
	_ = repo.CreateHandles(ctx, []*models.SocialMediaHandle{h})

	if err := repo.DisableHandle(ctx, h.ID); err != nil {
		t.Fatalf("DisableHandle: %v", err)
	}
	if handles, _ := repo.ListHandles(ctx, acc.ID, ""); len(handles) != 0 {
		t.Fatalf("disabled handle still listed: %+v", handles)
	}
	if err := repo.DisableHandle(ctx, "missing"); !errors.Is(err, ErrNoSocialMediaHandle) {
		t.Fatalf("expected ErrNoSocialMediaHandle, got %v", err)
	}
}

func TestHandlesWithExpiringTokens(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, _ := repo.CreateAccount(ctx, "creator", "")
	now := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = repo.CreateHandles(ctx, []*models.SocialMediaHandle{
		{AccountID: acc.ID, Platform: "youtube", HandleUID: "soon", TokenExpiresAt: now.Add(time.Hour)},
		{AccountID: acc.ID, Platform: "youtube", HandleUID: "later", TokenExpiresAt: now.Add(72 * time.Hour)},
	})
	handles, err := repo.HandlesWithExpiringTokens(ctx, now.Add(24*time.Hour))
	if err != nil || len(handles) != 1 || handles[0].HandleUID != "soon" {
		t.Fatalf("HandlesWithExpiringTokens = %+v, %v", handles, err)
	}
}
