package post

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Post はローカルAPIで扱う投稿。
type Post struct {
	// ID は投稿の識別子。Gatewayが省略した場合はNormalizerが合成する。
	ID string `json:"id"`
	// Title はタイトル。
	Title string `json:"title"`
	// Summary は要約。
	Summary string `json:"summary"`
	// Body は本文。
	Body string `json:"body"`
	// AuthorID は投稿者（教師）のID。0は不明。
	AuthorID int64 `json:"authorId,omitempty"`
	// CreatedAt はGatewayが返したISO-8601の作成日時をそのまま保持する。
	CreatedAt string `json:"createdAt,omitempty"`
	// UpdatedAt はGatewayが返したISO-8601の更新日時をそのまま保持する。
	UpdatedAt string `json:"updatedAt,omitempty"`
	// DisplayDate は表示用の日付文字列。時刻情報を失っているため再パースしないこと。
	DisplayDate string `json:"displayDate,omitempty"`
}

// Input は作成・更新時にクライアントから受け取る編集可能フィールド。
// 更新は全置換なので、作成と同じくすべて必須とする。
type Input struct {
	// Title はタイトル。
	Title string `json:"title" binding:"required"`
	// Summary は要約。
	Summary string `json:"summary" binding:"required"`
	// Body は本文。
	Body string `json:"body" binding:"required"`
}

// GatewayInput はGatewayに送る投稿の作成・更新ボディ。
type GatewayInput struct {
	Titulo   string `json:"titulo"`
	Resumo   string `json:"resumo"`
	Conteudo string `json:"conteudo"`
}

// Gateway はGatewayのフィールド名に変換する。
func (in Input) Gateway() GatewayInput {
	return GatewayInput{
		Titulo:   in.Title,
		Resumo:   in.Summary,
		Conteudo: in.Body,
	}
}

// フィールドの別名。先頭ほど優先する。
var (
	titleKeys     = []string{"titulo", "title"}
	summaryKeys   = []string{"resumo", "summary"}
	bodyKeys      = []string{"conteudo", "content", "body"}
	authorKeys    = []string{"professor_id", "authorId", "author_id"}
	createdAtKeys = []string{"created_at", "createdAt"}
	updatedAtKeys = []string{"updated_at", "updatedAt"}
)

// errNotObject はレコードがJSONオブジェクトでないことを表す。
var errNotObject = errors.New("投稿レコードがJSONオブジェクトではありません")

// UnmarshalJSON はGateway形式とローカル形式のどちらのフィールド名でも読み取る。
// idは文字列・数値のどちらでもよい。
func (p *Post) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errNotObject
	}

	*p = Post{
		ID:          scalarString(fields["id"]),
		Title:       firstString(fields, titleKeys),
		Summary:     firstString(fields, summaryKeys),
		Body:        firstString(fields, bodyKeys),
		AuthorID:    firstInt(fields, authorKeys),
		CreatedAt:   firstString(fields, createdAtKeys),
		UpdatedAt:   firstString(fields, updatedAtKeys),
		DisplayDate: scalarString(fields["displayDate"]),
	}
	return nil
}

// firstString は最初に見つかった別名の値を文字列として返す。
func firstString(fields map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if raw, ok := fields[k]; ok {
			if s := scalarString(raw); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstInt は最初に見つかった別名の値を整数として返す。数値文字列も受け付ける。
func firstInt(fields map[string]json.RawMessage, keys []string) int64 {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(scalarString(raw), 10, 64); err == nil && n != 0 {
			return n
		}
	}
	return 0
}

// scalarString はJSONの文字列または数値を文字列にする。それ以外は空文字を返す。
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
