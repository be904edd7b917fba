package jobs

// Partition splits indices into m contiguous blocks. Each block gets
// len(indices)/m items, and the first len(indices)%m blocks get one more.
// Order is preserved.
func Partition(indices []int, m int) [][]int {
	if m <= 0 {
		return nil
	}
	out := make([][]int, m)
	base := len(indices) / m
	extra := len(indices) % m
	start := 0
	for i := 0; i < m; i++ {
		n := base
		if i < extra {
			n++
		}
		out[i] = append([]int(nil), indices[start:start+n]...)
		start += n
	}
	return out
}
