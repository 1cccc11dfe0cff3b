// Package middleware はGinベースのHTTPサーバーで使用する共通ミドルウェアを提供する。
//
// リクエストID採番、zapによるアクセスログとパニックリカバリ、資格情報付きCORS、
// 開発用GatewayのJWT発行・検証と教師ロールの判定を含む。
package middleware
