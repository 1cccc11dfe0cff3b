// Package devgateway はローカル開発とテストのための投稿Gatewayを提供する。
//
// 本番Gatewayと同じ契約（/user/signin, /user/signup, /posts 以下）を持ち、
// 利用者と投稿をSQLiteに保存する。変更系のエンドポイントは
// 教師ロールを持つJWTでのみ呼び出せる。
package devgateway
