package post

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Shape はGatewayのレスポンスの包み方の種類。
type Shape int

const (
	// ShapeEmpty は投稿を取り出せないペイロード（空ボディ、不明な形、不正なJSON）。
	ShapeEmpty Shape = iota
	// ShapeBareArray は配列そのもの。
	ShapeBareArray
	// ShapePostsField は {"posts": [...]}。
	ShapePostsField
	// ShapeDataField は {"data": [...]}。
	ShapeDataField
)

// String はログ出力用の名前を返す。
func (s Shape) String() string {
	switch s {
	case ShapeBareArray:
		return "bare_array"
	case ShapePostsField:
		return "posts_field"
	case ShapeDataField:
		return "data_field"
	default:
		return "empty"
	}
}

// Payload は形を判定済みのペイロード。RecordsはGatewayの並び順を保つ。
type Payload struct {
	// Shape は判定した形。
	Shape Shape
	// Records は配列の各要素。
	Records []json.RawMessage
}

// wrapperFields は配列を包むフィールドの判定順。
var wrapperFields = []struct {
	key   string
	shape Shape
}{
	{key: "posts", shape: ShapePostsField},
	{key: "data", shape: ShapeDataField},
}

// Classify はペイロードの形を判定する。
// 配列そのもの、postsフィールドの配列、dataフィールドの配列の順に照合し、
// どれにも当てはまらなければShapeEmptyを返す。
func Classify(body []byte) Payload {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{Shape: ShapeEmpty}
	}

	if records, ok := asArray(trimmed); ok {
		return Payload{Shape: ShapeBareArray, Records: records}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return Payload{Shape: ShapeEmpty}
	}
	for _, f := range wrapperFields {
		if records, ok := asArray(obj[f.key]); ok {
			return Payload{Shape: f.shape, Records: records}
		}
	}
	return Payload{Shape: ShapeEmpty}
}

// asArray はJSON配列であれば要素を返す。nullは配列とみなさない。
func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil || records == nil {
		return nil, false
	}
	return records, true
}

// Normalizer はGatewayのペイロードを投稿の列に変換し、すべての投稿にIDを持たせる。
type Normalizer struct {
	// now は合成IDに使う現在時刻。
	now func() time.Time
	// dateLayout はDisplayDateの書式。空なら付与しない。
	dateLayout string
	// location はDisplayDateのタイムゾーン。
	location *time.Location
}

// NormalizerOption はNormalizerの生成オプション。
type NormalizerOption func(*Normalizer)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithLocation はDisplayDateのタイムゾーンを指定する。既定はtime.Local。
func WithLocation(loc *time.Location) NormalizerOption {
	return func(n *Normalizer) {
		n.location = loc
	}
}

// NewNormalizer は新しいNormalizerを生成する。
// dateLayoutはcreatedAtから表示用日付を作る書式で、空文字なら表示用日付を付けない。
func NewNormalizer(dateLayout string, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		now:        time.Now,
		dateLayout: dateLayout,
		location:   time.Local,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize はレスポンスボディから投稿の列を取り出す。
// 要素の順序は保つが、JSONオブジェクトでない要素（数値・文字列・null）は取り除くため、
// 戻り値の長さは元の配列より短くなることがある。
func (n *Normalizer) Normalize(body []byte) []Post {
	return n.Posts(Classify(body))
}

// Posts は判定済みペイロードの各要素を投稿に変換する。
// オブジェクトでない要素は取り除く。オブジェクトであればフィールドの型が違っても残す。
func (n *Normalizer) Posts(p Payload) []Post {
	posts := make([]Post, 0, len(p.Records))
	for _, raw := range p.Records {
		var post Post
		if err := json.Unmarshal(raw, &post); err != nil {
			continue
		}
		posts = append(posts, n.Finish(post))
	}
	return posts
}

// Record は単一の投稿を返すレスポンスを変換する。{"post": {...}} で包まれていれば取り出す。
// レコードにIDが無い場合、fallbackIDが空でなければそれを使い、空なら合成する。
func (n *Normalizer) Record(body []byte, fallbackID string) (Post, error) {
	raw := json.RawMessage(bytes.TrimSpace(body))

	var wrapper struct {
		Post json.RawMessage `json:"post"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && isObject(wrapper.Post) {
		raw = wrapper.Post
	}

	var post Post
	if err := json.Unmarshal(raw, &post); err != nil {
		return Post{}, fmt.Errorf("投稿のデコードに失敗: %w", err)
	}
	if post.ID == "" {
		post.ID = fallbackID
	}
	return n.Finish(post), nil
}

// Finish はIDが無ければ合成し、表示用日付を付ける。
func (n *Normalizer) Finish(p Post) Post {
	if p.ID == "" {
		p.ID = n.SynthesizeID(p)
	}
	if d := n.displayDate(p.CreatedAt); d != "" {
		p.DisplayDate = d
	}
	return p
}

// SynthesizeID は投稿者IDと現在時刻（ミリ秒）からIDを作る。投稿者IDが無ければ時刻のみ。
// 同じミリ秒内に同じ投稿者で呼ばれると同じ値になり、一意性は保証しない。
func (n *Normalizer) SynthesizeID(p Post) string {
	millis := n.now().UnixMilli()
	if p.AuthorID != 0 {
		return fmt.Sprintf("%d-%d", p.AuthorID, millis)
	}
	return strconv.FormatInt(millis, 10)
}

// timestampLayouts はcreatedAtとして受け付ける書式。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// displayDate はISO-8601の日時を表示用の日付にする。解釈できなければ空文字を返す。
func (n *Normalizer) displayDate(ts string) string {
	if n.dateLayout == "" || ts == "" {
		return ""
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.In(n.location).Format(n.dateLayout)
		}
	}
	return ""
}

// isObject はJSONオブジェクトかどうかを返す。
func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
