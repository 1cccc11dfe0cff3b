// Package proxy はブラウザやCLIが使うローカルAPIを提供し、リモートGatewayへ転送する。
//
// 投稿の一覧・取得・作成・更新・削除と、サインイン・サインアップ・サインアウトを扱う。
// 読み取り系はGatewayの失敗を空の結果に畳み込み、書き込み系はGatewayのステータスを
// できるだけそのまま返す。GatewayのトークンはHTTP-onlyのセッションCookie "auth-token" に
// 保持し、変更系のリクエストでBearerトークンとして転送する。
package proxy
