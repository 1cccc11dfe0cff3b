// Package gateway は投稿とユーザーを管理するリモートGatewayのクライアントを提供する。
//
// サインイン・サインアップ・投稿のCRUDをGatewayのHTTP契約どおりに呼び出す。
// 変更系の操作にはBearerトークンを付ける。トークンは不透明な文字列として扱い、
// 中身を検査しない。
package gateway
