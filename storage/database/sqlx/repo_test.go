package sqlxrepos

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eduplatform/backend/core"
)

func Test_orderBy(t *testing.T) {
	assert.Equal(t, "", orderBy(nil))
	assert.Equal(t, " ORDER BY created_at DESC, id DESC", orderBy(newestFirst))
	assert.Equal(t, " ORDER BY title ASC", orderBy([]core.DBOrdering{{Field: "title", Ascending: true}}))
}

func Test_page(t *testing.T) {
	q, args := page("SELECT 1", []interface{}{"a"}, nil)
	assert.Equal(t, "SELECT 1", q)
	assert.Equal(t, []interface{}{"a"}, args)

	q, args = page("SELECT 1", []interface{}{"a"}, &core.Page{Page: 3, Limit: 10})
	assert.Equal(t, "SELECT 1 LIMIT ? OFFSET ?", q)
	assert.Equal(t, []interface{}{"a", 10, 20}, args)
}
