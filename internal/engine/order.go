package engine

import "sort"

// adjacencyLocked строит рёбра task → зависимые tasks по связям.
// Несколько связей между одной парой tasks дают одно ребро.
func (f *Flow) adjacencyLocked() map[string][]string {
	adj := make(map[string][]string, len(f.tasks))
	seen := make(map[[2]string]bool)

	for _, c := range f.connections {
		from, to := c.source.TaskID, c.target.TaskID
		if _, ok := f.tasks[from]; !ok {
			continue
		}
		if _, ok := f.tasks[to]; !ok {
			continue
		}
		edge := [2]string{from, to}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		adj[from] = append(adj[from], to)
	}

	for id := range adj {
		sort.Strings(adj[id])
	}
	return adj
}

// HasCycle проверяет граф на циклы.
func (f *Flow) HasCycle() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hasCycleLocked()
}

// hasCycleLocked — обход в глубину с множеством узлов текущего пути:
// ребро в узел из этого множества означает цикл.
func (f *Flow) hasCycleLocked() bool {
	adj := f.adjacencyLocked()
	visited := make(map[string]bool, len(f.tasks))
	onStack := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, next := range adj[id] {
			if onStack[next] {
				return true
			}
			if !visited[next] && visit(next) {
				return true
			}
		}
		onStack[id] = false
		return false
	}

	ids := make([]string, 0, len(f.tasks))
	for id := range f.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !visited[id] && visit(id) {
			return true
		}
	}
	return false
}

// ExecutionLayers возвращает tasks, разбитые на слои топологического порядка.
//
// Tasks одного слоя не зависят друг от друга; каждая task стоит в слое
// строго после всех своих зависимостей. Внутри слоя tasks отсортированы по ID.
func (f *Flow) ExecutionLayers() ([][]Task, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.validateConnectionsLocked(); err != nil {
		return nil, err
	}
	return f.layersLocked()
}

// ExecutionOrder возвращает tasks в топологическом порядке.
func (f *Flow) ExecutionOrder() ([]Task, error) {
	layers, err := f.ExecutionLayers()
	if err != nil {
		return nil, err
	}

	order := make([]Task, 0)
	for _, layer := range layers {
		order = append(order, layer...)
	}
	return order, nil
}

// layersLocked выполняет топологическую сортировку (алгоритм Кана) по слоям.
// Возвращает ErrCyclicDependency, если не все tasks попали в порядок.
func (f *Flow) layersLocked() ([][]Task, error) {
	adj := f.adjacencyLocked()

	inDegree := make(map[string]int, len(f.tasks))
	for id := range f.tasks {
		inDegree[id] = 0
	}
	for _, targets := range adj {
		for _, to := range targets {
			inDegree[to]++
		}
	}

	// Первый слой — tasks без входящих рёбер
	current := make([]string, 0)
	for id, d := range inDegree {
		if d == 0 {
			current = append(current, id)
		}
	}

	layers := make([][]Task, 0)
	processed := 0

	for len(current) > 0 {
		sort.Strings(current)

		layer := make([]Task, len(current))
		next := make([]string, 0)
		for i, id := range current {
			layer[i] = f.tasks[id]
			processed++

			// Уменьшаем inDegree у зависимых tasks
			for _, to := range adj[id] {
				inDegree[to]--
				if inDegree[to] == 0 {
					next = append(next, to)
				}
			}
		}

		layers = append(layers, layer)
		current = next
	}

	if processed != len(f.tasks) {
		return nil, ErrCyclicDependency
	}
	return layers, nil
}
