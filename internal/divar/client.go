// Package divar は掲載検索APIのクライアントを提供する。
// ウェブ向けの検索URLをAPIエンドポイントに変換し、
// 検索結果を新しい順の掲載リストとして返す。
package divar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/wallert/internal/model"
	"github.com/hitoshi/wallert/internal/security"
)

// searchPathPrefix はウェブ向け検索URLのパス接頭辞。
const searchPathPrefix = "/s/"

// Client は検索APIのHTTPクライアント。
// httpClientは呼び出し側が注入する。本番ではSSRF防止付きクライアントを渡す。
type Client struct {
	httpClient *http.Client
	// webBaseURL は掲載ページへのリンク生成に使う（例: https://divar.ir）。
	webBaseURL string
	// apiBaseURL は検索APIの起点（例: https://api.divar.ir/v8/web-search）。
	apiBaseURL string
	sanitizer  security.TextSanitizerService
	logger     *slog.Logger
	// maxBodyBytes は応答ボディの読み取り上限。巨大応答からの保護。
	maxBodyBytes int64
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, webBaseURL, apiBaseURL string, sanitizer security.TextSanitizerService, logger *slog.Logger, maxBodyBytes int64) *Client {
	return &Client{
		httpClient:   httpClient,
		webBaseURL:   strings.TrimSuffix(webBaseURL, "/"),
		apiBaseURL:   strings.TrimSuffix(apiBaseURL, "/"),
		sanitizer:    sanitizer,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// ValidateSearchURL はウェブ向け検索URLの形式を検証する。
// https、正しいホスト、/s/で始まるパスのみ受け付ける。
func (c *Client) ValidateSearchURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.NewInvalidQueryURLError()
	}
	web, err := url.Parse(c.webBaseURL)
	if err != nil {
		return fmt.Errorf("invalid web base URL: %w", err)
	}
	if parsed.Scheme != "https" || !strings.EqualFold(parsed.Host, web.Host) {
		return model.NewInvalidQueryURLError()
	}
	if !strings.HasPrefix(parsed.Path, searchPathPrefix) || parsed.Path == searchPathPrefix {
		return model.NewInvalidQueryURLError()
	}
	return nil
}

// translateSearchURL はウェブ向け検索URLをAPIエンドポイントに変換する。
// パスの/s/以降とクエリ文字列をそのまま引き継ぐ。
func (c *Client) translateSearchURL(rawURL string) (string, error) {
	if err := c.ValidateSearchURL(rawURL); err != nil {
		return "", err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", model.NewInvalidQueryURLError()
	}

	apiURL := c.apiBaseURL + "/" + strings.TrimPrefix(parsed.Path, searchPathPrefix)
	if parsed.RawQuery != "" {
		apiURL += "?" + parsed.RawQuery
	}
	return apiURL, nil
}

// searchResponse は検索APIの応答のうち、必要な部分だけを写し取る。
type searchResponse struct {
	WebWidgets struct {
		PostList []postWidget `json:"post_list"`
	} `json:"web_widgets"`
}

type postWidget struct {
	Data postData `json:"data"`
}

// postData は掲載ウィジェット1件のデータ部。
// image_urlはサイズ違いの画像の配列で、先頭のsrcを採用する。
// 都市とカテゴリは掲載ページ遷移用のaction内にネストされている。
type postData struct {
	ImageURL []struct {
		Src string `json:"src"`
	} `json:"image_url"`
	Title                 string `json:"title"`
	TopDescriptionText    string `json:"top_description_text"`
	MiddleDescriptionText string `json:"middle_description_text"`
	Action                struct {
		Payload struct {
			WebInfo struct {
				CityPersian         string `json:"city_persian"`
				CategorySlugPersian string `json:"category_slug_persian"`
			} `json:"web_info"`
		} `json:"payload"`
	} `json:"action"`
	Token string `json:"token"`
}

// FetchListings は検索結果を新しい順の掲載リストとして取得する。
// ネットワーク障害・タイムアウト・不正な応答はすべてFeedUnavailableとして返す。
// 応答のテキストはすべてサニタイズしてから返す。
func (c *Client) FetchListings(ctx context.Context, queryURL string) ([]*model.Listing, error) {
	apiURL, err := c.translateSearchURL(queryURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("search API request failed", "url", apiURL, "error", err)
		return nil, model.NewFeedUnavailableError()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("search API returned non-200", "url", apiURL, "status", resp.StatusCode)
		return nil, model.NewFeedUnavailableError()
	}

	var decoded searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxBodyBytes)).Decode(&decoded); err != nil {
		c.logger.Warn("failed to decode search API response", "url", apiURL, "error", err)
		return nil, model.NewFeedUnavailableError()
	}

	listings := make([]*model.Listing, 0, len(decoded.WebWidgets.PostList))
	for _, widget := range decoded.WebWidgets.PostList {
		// 広告等の掲載以外のウィジェットは識別子を持たないため除外する
		if widget.Data.Token == "" {
			continue
		}
		listings = append(listings, c.project(widget.Data))
	}
	return listings, nil
}

// project はAPI応答の1件を掲載モデルに写し取る。
// 外部由来のテキストはここで必ずサニタイズする。
func (c *Client) project(data postData) *model.Listing {
	image := ""
	if len(data.ImageURL) > 0 {
		image = data.ImageURL[0].Src
	}
	webInfo := data.Action.Payload.WebInfo
	return &model.Listing{
		Image:             image,
		Title:             c.sanitizer.SanitizeText(data.Title),
		TopDescription:    c.sanitizer.SanitizeText(data.TopDescriptionText),
		MiddleDescription: c.sanitizer.SanitizeText(data.MiddleDescriptionText),
		City:              c.sanitizer.SanitizeText(webInfo.CityPersian),
		Category:          c.sanitizer.SanitizeText(webInfo.CategorySlugPersian),
		Token:             data.Token,
		Link:              c.webBaseURL + "/v/" + data.Token,
	}
}
