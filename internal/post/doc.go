// Package post は投稿のモデルと、Gatewayのレスポンスを正規化するNormalizerを提供する。
//
// Gatewayは一覧を配列そのもの、{"posts": [...]}、{"data": [...]} のいずれかで返す。
// Classifyはこれらを判定順に照合してPayloadにまとめ、Normalizerは各要素を
// Postに変換する。IDを持たない投稿には投稿者IDと現在時刻から合成したIDを付ける。
// 合成IDは一意とは限らない。正となるIDはGatewayが発行したものである。
package post
