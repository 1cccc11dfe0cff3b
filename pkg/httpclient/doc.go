// Package httpclient は上流サービスとのHTTP通信を行うクライアントを提供する。
//
// プロキシ層がGatewayへリクエストを転送する際の低レベルな送受信（Do）と、
// クライアントストアがローカルAPIを呼び出す際のJSONヘルパー（GetJSON等）を持つ。
// ステータスコードの解釈は呼び出し側に委ねる。
package httpclient
