package matching

// ForEachCombination calls fn with every k-subset of {0..n-1} in lexicographic order.
// The slice passed to fn is reused between calls. Returning false stops the walk.
func ForEachCombination(n, k int, fn func(idx []int) bool) {
	if k <= 0 || k > n {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// Binomial returns C(n, k).
func Binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := 1
	for i := 1; i <= k; i++ {
		result = result * (n - k + i) / i
	}
	return result
}

// CountGroupCombinations returns how many groups the engine enumerates from a pool of n
// for group sizes minSize..maxSize, i.e. the sum of C(n, k).
func CountGroupCombinations(n, minSize, maxSize int) int {
	total := 0
	for k := minSize; k <= maxSize; k++ {
		total += Binomial(n, k)
	}
	return total
}
