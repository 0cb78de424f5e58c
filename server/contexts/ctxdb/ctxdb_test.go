package ctxdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlags(t *testing.T) {
	bg := context.Background()
	cases := []struct {
		desc        string
		ctx         context.Context
		wantPrimary bool
		wantBypass  bool
	}{
		{"not set", bg, false, false},
		{"primary", RequirePrimary(bg, true), true, false},
		{"primary unset", RequirePrimary(RequirePrimary(bg, true), false), false, false},
		{"bypass", BypassCachedMysql(bg, true), false, true},
		{"bypass unset", BypassCachedMysql(BypassCachedMysql(bg, true), false), false, false},
		{"both", BypassCachedMysql(RequirePrimary(bg, true), true), true, true},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			require.Equal(t, c.wantPrimary, IsPrimaryRequired(c.ctx))
			require.Equal(t, c.wantBypass, IsCachedMysqlBypassed(c.ctx))
		})
	}
}
