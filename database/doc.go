// Package database provides connection management, the schema definition,
// versioned migrations, SQL seed files, foreign key handling, SQL error
// classification, query logging and transaction helpers built on top of Bun.
package database
