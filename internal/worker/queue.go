package worker

const minQueueCap = 16

// taskQueue はタスクのFIFOリングバッファ
// 容量は満杯になると倍に伸びる。ロックは呼び出し側が保持すること
type taskQueue struct {
	buf   []*task
	head  int
	count int
}

// len はキュー内のタスク数を返す
func (q *taskQueue) len() int {
	return q.count
}

// push は末尾にタスクを追加する
func (q *taskQueue) push(t *task) {
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = t
	q.count++
}

// pop は先頭のタスクを取り出す
func (q *taskQueue) pop() (*task, bool) {
	if q.count == 0 {
		return nil, false
	}
	t := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return t, true
}

// drain は残っている全タスクを投入順で取り出す
func (q *taskQueue) drain() []*task {
	tasks := make([]*task, 0, q.count)
	for {
		t, ok := q.pop()
		if !ok {
			return tasks
		}
		tasks = append(tasks, t)
	}
}

func (q *taskQueue) grow() {
	n := len(q.buf) * 2
	if n < minQueueCap {
		n = minQueueCap
	}
	buf := make([]*task, n)
	for i := 0; i < q.count; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
