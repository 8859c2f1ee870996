package poll

import "github.com/hitoshi/wallert/internal/model"

// LatestSince は新しい順の掲載リストから、カーソルより新しいものを返す。
// カーソルはリスト内の掲載トークンで、前回確認済みの最新掲載を指す。
//
// カーソルがリスト内に見つからない場合（掲載が削除された、または
// 前回確認以降にページ分を超える新着があった場合）は全件を新着とみなす。
// この判定は1ページ分しか遡れないため、ページ境界を超えた新着は
// 取りこぼす可能性がある。
func LatestSince(listings []*model.Listing, cursor string) []*model.Listing {
	if cursor == "" {
		return listings
	}
	for i, listing := range listings {
		if listing.Token == cursor {
			return listings[:i]
		}
	}
	return listings
}
