// Package fault はタスクへの障害注入機能を提供する。
//
// Injectorはタスク関数をラップし、実行のたびに設定された確率で
// 障害を注入する。障害はワーカープールの各結果経路を検証するために使用される。
//
// # 障害タイプ
//
// - Error: タスクを実行せず ErrInjected を返す
// - Panic: タスク内でpanicを起こす（プールは *worker.PanicError として報告する）
// - Delay: 指定時間待機してからタスクを実行する
//
// # 使用例
//
//	config := fault.DefaultConfig()
//	config.Rate = 0.1
//	config.FaultTypes = []fault.FaultType{fault.FaultError, fault.FaultPanic}
//
//	inj := fault.New(config)
//	job = inj.Wrap(job)
package fault
