package analysis

import "sync"

type completedTask[T any] struct {
	Result T
	Error  error
}

// runInPool runs worker over every input through at most maxWorkers
// goroutines and returns a channel carrying one outcome per input, in
// completion order. The channel is closed once all inputs are processed.
func runInPool[In any, Out any](worker func(In) (Out, error), inputs []In, maxWorkers int) <-chan completedTask[Out] {
	queue := make(chan In, len(inputs))
	for _, input := range inputs {
		queue <- input
	}
	close(queue)

	completed := make(chan completedTask[Out], len(inputs))
	workers := min(len(inputs), maxWorkers)

	go func() {
		var wg sync.WaitGroup
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for input := range queue {
					res, err := worker(input)
					completed <- completedTask[Out]{Result: res, Error: err}
				}
			}()
		}

		wg.Wait()
		close(completed)
	}()

	return completed
}
