package pricing

import "sync"

// fanOut calls fn once for every index in [0, n) on at most workers
// goroutines and returns when all calls have finished. fn must only write
// state owned by its index.
func fanOut(workers, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	wg.Wait()
}
