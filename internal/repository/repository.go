// Package repository holds the storage boundary: one interface per table plus
// Postgres (lib/pq) and in-memory implementations.
package repository

import "database/sql"

// Repositories 聚合所有Repository
type Repositories struct {
	Clients ClientsRepository
	Entries ScheduleEntriesRepository
	Visits  VisitsRepository
	Routes  RoutesRepository
	Vendors VendorsRepository
}

// NewPostgresRepositories wires every table to the same connection pool.
func NewPostgresRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Clients: NewPostgresClientsRepository(db),
		Entries: NewPostgresScheduleEntriesRepository(db),
		Visits:  NewPostgresVisitsRepository(db),
		Routes:  NewPostgresRoutesRepository(db),
		Vendors: NewPostgresVendorsRepository(db),
	}
}

// NewMemoryRepositories DB 未启用时的内存实现
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Clients: NewMemoryClientsRepo(),
		Entries: NewMemoryScheduleEntriesRepo(),
		Visits:  NewMemoryVisitsRepo(),
		Routes:  NewMemoryRoutesRepo(),
		Vendors: NewMemoryVendorsRepo(),
	}
}
