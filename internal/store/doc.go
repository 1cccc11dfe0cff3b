// Package store はローカルAPIのクライアント側の状態を管理する。
//
// Storeは投稿一覧・検索語・サインイン状態・教師ロールを保持し、
// 変更操作のたびに一覧を取り直す。サインイン状態はローカルに保存した
// マーカーから読むだけでトークンは検証しないため、表示の切り替えにのみ使う。
//
// SessionDBはマーカーとCookieをSQLiteに保存し、HTTP-onlyのセッションCookieを
// コマンドの実行をまたいで保持する。
package store
