package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nao1215/teacherhub/internal/post"
	"github.com/nao1215/teacherhub/pkg/httpclient"
)

// Gatewayのエンドポイント。
const (
	signInPath = "/user/signin"
	signUpPath = "/user/signup"
	postsPath  = "/posts"
	searchPath = "/posts/search"
)

// UndefinedToken はセッションCookieが無いまま作成リクエストを送るときに使うトークン。
// Gatewayには "Authorization: Bearer undefined" が届き、Gateway側で拒否される。
const UndefinedToken = "undefined"

// Client はGatewayに対して1操作につき1リクエストを発行する。
// リトライもステータスコードの解釈も行わず、レスポンスをそのまま返す。
type Client struct {
	http *httpclient.Client
}

// New は新しいGatewayクライアントを生成する。
func New(baseURL string, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New(baseURL, opts...)}
}

// BaseURL は接続先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.http.BaseURL()
}

// SignIn は認証情報のボディをそのままサインインエンドポイントに転送する。
func (c *Client) SignIn(ctx context.Context, credentials []byte) (*httpclient.Response, error) {
	return c.http.Do(ctx, http.MethodPost, signInPath, credentials, nil)
}

// SignUp は登録情報のボディをそのままサインアップエンドポイントに転送する。
func (c *Client) SignUp(ctx context.Context, credentials []byte) (*httpclient.Response, error) {
	return c.http.Do(ctx, http.MethodPost, signUpPath, credentials, nil)
}

// ListPosts は投稿一覧を取得する。
func (c *Client) ListPosts(ctx context.Context) (*httpclient.Response, error) {
	return c.http.Do(ctx, http.MethodGet, postsPath, nil, nil)
}

// SearchPosts は検索語で投稿を検索する。検索語はURLエンコードして送る。
func (c *Client) SearchPosts(ctx context.Context, term string) (*httpclient.Response, error) {
	return c.http.Do(ctx, http.MethodGet, searchPath+"?query="+encodeQuery(term), nil, nil)
}

// GetPost はIDを指定して投稿を1件取得する。
func (c *Client) GetPost(ctx context.Context, id string) (*httpclient.Response, error) {
	return c.http.Do(ctx, http.MethodGet, postPath(id), nil, nil)
}

// CreatePost は投稿を作成する。
func (c *Client) CreatePost(ctx context.Context, token string, in post.GatewayInput) (*httpclient.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("投稿ボディのシリアライズに失敗: %w", err)
	}
	return c.http.Do(ctx, http.MethodPost, postsPath, body, bearer(token))
}

// UpdatePost は投稿を全置換で更新する。
func (c *Client) UpdatePost(ctx context.Context, token, id string, in post.GatewayInput) (*httpclient.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("投稿ボディのシリアライズに失敗: %w", err)
	}
	return c.http.Do(ctx, http.MethodPut, postPath(id), body, bearer(token))
}

// DeletePost は投稿を削除する。
func (c *Client) DeletePost(ctx context.Context, token, id string) (*httpclient.Response, error) {
	return c.http.Do(ctx, http.MethodDelete, postPath(id), nil, bearer(token))
}

// bearer はAuthorizationヘッダーを組み立てる。トークンは検証せずそのまま載せる。
func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// postPath は投稿1件のパスを返す。
func postPath(id string) string {
	return postsPath + "/" + url.PathEscape(id)
}

// encodeQuery はクエリ値をエンコードする。空白は + ではなく %20 にする。
func encodeQuery(term string) string {
	return strings.ReplaceAll(url.QueryEscape(term), "+", "%20")
}
