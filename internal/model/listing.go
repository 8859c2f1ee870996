// Package model はドメインモデルを定義する。
package model

// Listing は外部の検索APIから取得した掲載1件の通知用表現。
// Tokenが掲載の一意な識別子で、LinkはTokenから決定的に導出される。
type Listing struct {
	Image             string `json:"image"`
	Title             string `json:"title"`
	TopDescription    string `json:"top_description"`
	MiddleDescription string `json:"middle_description"`
	City              string `json:"city"`
	Category          string `json:"category"`
	Token             string `json:"token"`
	Link              string `json:"link"`
}
