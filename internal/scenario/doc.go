// Package scenario は統合シナリオ実行機能を提供する。
//
// シナリオエンジンはワーカープール、ワークロード、障害注入、リトライを
// 連携させて負荷試験を実行する。
//
// # 機能
//
// - シナリオ定義と実行（投入、ドレイン、シャットダウンの各フェーズを計測）
// - 定義済みプリセットシナリオ
// - 実行結果のレポート生成
// - 実行中のシナリオの中断
//
// # プリセットシナリオ
//
// - basic: 障害注入なしの基本負荷テスト
// - faults: エラーとpanicの注入とリトライ
// - latency: レイテンシ注入テスト
// - stress: 高負荷ストレステスト
// - quick: 短時間の動作確認
//
// # 使用例
//
//	config := scenario.FaultsScenario()
//	engine := scenario.New(config)
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report())
package scenario
