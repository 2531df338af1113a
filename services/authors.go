package services

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nasda-team/nasda/models"
	"github.com/nasda-team/nasda/utils"
)

// UnknownNickname is shown for orphaned content and unresolvable authors.
const UnknownNickname = "(알 수 없음)"

// authorNicknames resolves the current nickname of each owner in one query.
func authorNicknames(db *gorm.DB, owners []models.Owner) (map[uint]string, error) {
	ids := utils.UniqueOwnerIDs(owners)
	names := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var users []models.User
	if err := db.Select("id", "nickname").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Nickname
	}
	return names, nil
}

func nicknameOf(names map[uint]string, owner models.Owner) string {
	id, ok := owner.ID()
	if !ok {
		return UnknownNickname
	}
	if name, found := names[id]; found && name != "" {
		return name
	}
	return UnknownNickname
}

func clampPage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = 1
	}
	return page, size
}

func lastPageIndex(total int64, size int) int {
	if total <= 0 || size < 1 {
		return 0
	}
	return int((total - 1) / int64(size))
}

func logCleanupFailures(what string, failures []error) {
	for _, err := range failures {
		utils.Logger.Warn("best-effort image cleanup failed", zap.String("scope", what), zap.Error(err))
	}
}

// invalidateFeeds drops every cached home and category feed page.
var invalidateFeeds = func() {
	utils.InvalidateByPrefix(utils.HomeFeedCachePrefix)
}
