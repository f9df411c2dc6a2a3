package main

import (
	"fmt"
	"os"
)

/*
Housekeeping for a blogpom database.

1. > ./admin flash-key
CPjaot8hYLXpm4xIaXHWsQKJWkelY3msP6AbR8wYmrE=
[set FLASH_KEY to this value so flash cookies survive restarts]
2. > ./admin --db sqlite://./data/blogpom.db migrate
3. > ./admin --db sqlite://./data/blogpom.db seed --posts 25
*/

func main() {
	if err := newRootCmd(os.Getenv("DATABASE_URL")).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
