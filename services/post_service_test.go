package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasda-team/nasda/models"
)

func TestPostService_TitleLengthBoundary(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	cat := f.category(t, "꽃")

	post, err := f.posts.Create(alice, cat, strings.Repeat("제", MaxTitleLength), "")
	require.NoError(t, err)
	assert.Equal(t, 0, post.ViewCount)
	assert.True(t, post.UserID.OwnedBy(alice))

	_, err = f.posts.Create(alice, cat, strings.Repeat("제", MaxTitleLength+1), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.posts.Create(alice, cat, "   ", "")
	assert.ErrorIs(t, err, ErrTitleRequired)

	_, err = f.posts.Create(alice, cat, "ok", strings.Repeat("a", MaxDescriptionLength+1))
	assert.ErrorIs(t, err, ErrDescriptionTooLong)

	_, err = f.posts.Create(alice, 9999, "ok", "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.posts.Create(9999, cat, "ok", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostService_UpdateRequiresOwner(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	postID := f.post(t, alice, "before")
	nature := f.category(t, "자연")

	_, err := f.posts.Update(postID, bob, nature, "hijack", "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.posts.Update(postID, 0, nature, "anonymous", "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.posts.Update(9999, alice, nature, "missing", "")
	assert.ErrorIs(t, err, ErrPostNotFound)

	updated, err := f.posts.Update(postID, alice, nature, "after", "body")
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, "body", updated.Description)
	assert.Equal(t, "자연", updated.Category.Name)
	assert.True(t, updated.UserID.OwnedBy(alice))
}

func TestPostService_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	postID := f.post(t, alice, "doomed")
	keepID := f.post(t, alice, "kept")

	require.NoError(t, f.images.AddImages(postID, []*ImageUpload{pngUpload("a.png"), pngUpload("b.png")}))
	require.NoError(t, f.images.AddImages(keepID, []*ImageUpload{pngUpload("c.png")}))
	urls, err := f.images.ImageURLs(postID)
	require.NoError(t, err)
	require.Len(t, urls, 2)
	_, err = f.comments.Create(postID, bob, "bye")
	require.NoError(t, err)
	_, err = f.comments.Create(keepID, bob, "stay")
	require.NoError(t, err)

	assert.ErrorIs(t, f.posts.Delete(postID, bob), ErrForbidden)
	require.NoError(t, f.posts.Delete(postID, alice))

	_, err = f.posts.Get(postID)
	assert.ErrorIs(t, err, ErrPostNotFound)

	var count int64
	require.NoError(t, f.db.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.db.Model(&models.PostImage{}).Where("post_id = ?", postID).Count(&count).Error)
	assert.Zero(t, count)
	for _, u := range urls {
		_, statErr := os.Stat(filepath.Join(f.storage.Dir(), filepath.Base(u)))
		assert.True(t, os.IsNotExist(statErr), "file for %s should be gone", u)
	}

	require.NoError(t, f.db.Model(&models.Comment{}).Where("post_id = ?", keepID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	kept, err := f.images.ImageURLs(keepID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestPostService_DeleteOrphanedPostIsForbidden(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	postID := f.post(t, alice, "orphan")
	require.NoError(t, f.users.Delete(alice))

	assert.ErrorIs(t, f.posts.Delete(postID, alice), ErrForbidden)
	assert.ErrorIs(t, f.posts.Delete(postID, 0), ErrForbidden)
}

func TestPostService_SearchByTitleIsCaseInsensitiveNewestFirst(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	cat := f.category(t, "반려동물")

	older, err := f.posts.Create(alice, cat, "My CAT sleeps", "")
	require.NoError(t, err)
	_, err = f.posts.Create(alice, cat, "dog day", "a cat in the description")
	require.NoError(t, err)
	newer, err := f.posts.Create(alice, cat, "concatenate", "")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", older.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	require.NoError(t, f.images.AddImages(older.ID, []*ImageUpload{pngUpload("first.png"), pngUpload("second.png")}))
	urls, err := f.images.ImageURLs(older.ID)
	require.NoError(t, err)

	results, err := f.posts.Search("cat", "title")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, newer.ID, results[0].ID)
	assert.Equal(t, "concatenate", results[0].Title)
	assert.Nil(t, results[0].ImageURL)
	assert.Equal(t, older.ID, results[1].ID)
	require.NotNil(t, results[1].ImageURL)
	assert.Equal(t, urls[0], *results[1].ImageURL)

	byDescription, err := f.posts.Search("CAT", "")
	require.NoError(t, err)
	require.Len(t, byDescription, 1)
	assert.Equal(t, "dog day", byDescription[0].Title)

	none, err := f.posts.Search("  ", "title")
	require.NoError(t, err)
	assert.Empty(t, none)

	wildcard, err := f.posts.Search("%", "title")
	require.NoError(t, err)
	assert.Empty(t, wildcard)
}

func TestPostService_SearchByAuthorAndCategory(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	_, err := f.posts.Create(alice, f.category(t, "운동"), "run", "")
	require.NoError(t, err)
	_, err = f.posts.Create(bob, f.category(t, "예술"), "paint", "")
	require.NoError(t, err)

	byAuthor, err := f.posts.Search("NICK-BOB", "author")
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "paint", byAuthor[0].Title)

	byCategory, err := f.posts.Search("운동", "category")
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "run", byCategory[0].Title)
}

func TestPostService_HomeFeeds(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	food := f.category(t, "음식")
	flower := f.category(t, "꽃")

	var lastFood uint
	for i := 0; i < HomeFeedLimit+2; i++ {
		cat := food
		if i%3 == 0 {
			cat = flower
		}
		p, err := f.posts.Create(alice, cat, "p", "")
		require.NoError(t, err)
		if cat == food {
			lastFood = p.ID
		}
	}
	require.NoError(t, f.images.AddImages(lastFood, []*ImageUpload{nil, pngUpload("first.png"), pngUpload("second.png")}))

	home, err := f.posts.HomePosts()
	require.NoError(t, err)
	assert.Len(t, home, HomeFeedLimit)

	page, err := f.posts.HomePostsByCategory("음식", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(21), page.Total)
	assert.Equal(t, 4, page.LastPage)
	require.Len(t, page.Items, 5)
	assert.Equal(t, lastFood, page.Items[0].ID)
	require.NotNil(t, page.Items[0].ImageURL)
	urls, err := f.images.ImageURLs(lastFood)
	require.NoError(t, err)
	assert.Equal(t, urls[0], *page.Items[0].ImageURL)
	assert.Nil(t, page.Items[1].ImageURL)

	all, err := f.posts.HomePostsByCategory(AllCategories, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(HomeFeedLimit+2), all.Total)
	blank, err := f.posts.HomePostsByCategory("", -1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, blank.Page)
	assert.Equal(t, 1, blank.Size)
}

func TestPostService_ViewCountsAndRendersDescription(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	post, err := f.posts.Create(alice, f.category(t, "일기"), "diary", "**bold** <script>alert(1)</script>")
	require.NoError(t, err)

	view, err := f.posts.View(post.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, view.ViewCount)
	assert.True(t, view.IsOwner)
	assert.Equal(t, "nick-alice", view.Nickname)
	assert.Equal(t, "일기", view.Category)
	assert.Contains(t, view.DescriptionHTML, "<strong>bold</strong>")
	assert.NotContains(t, view.DescriptionHTML, "<script>")
	assert.Empty(t, view.Images)

	view, err = f.posts.View(post.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ViewCount)
	assert.False(t, view.IsOwner)

	_, err = f.posts.View(9999, alice)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostService_UserListings(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	for i := 0; i < 12; i++ {
		f.post(t, alice, "a")
	}
	f.post(t, bob, "b")

	count, err := f.posts.CountByUser(alice)
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)

	page, err := f.posts.ListByUserPage(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, UserPostsPageSize, page.Size)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.LastPage)

	all, err := f.posts.ListByUser(bob)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].Title)

	recent, err := f.posts.RecentByUser(alice, 3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}
