// Package retry は失敗したタスクの再投入機能を提供する。
//
// Managerは失敗したタスクを待機時間を置いてワーカープールに再投入し、
// 成功するか最大リトライ回数に達するまで繰り返す。
// プールが停止済み、またはタスクが破棄された場合はリトライを打ち切る。
//
// # 使用例
//
//	config := retry.DefaultConfig()
//	config.MaxRetries = 3
//
//	manager := retry.New(pool, config)
//	if err := manager.Retry(ctx, taskID, job); err != nil {
//	    // 全リトライ失敗
//	}
package retry
