package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestTranslateFStrings(t *testing.T) {
	cases := map[string]struct {
		src  string
		want string
	}{
		"simple field": {
			src:  "print(f\"sum is {total}\")\n",
			want: "print((\"sum is {}\".format((total))))\n",
		},
		"conversion and escaped braces": {
			src:  "label = f'{x!r} and {{braces}}'\n",
			want: "label = ('{} and {{braces}}'.format(repr(x)))\n",
		},
		"format spec": {
			src:  "avg = f\"{mean:.2f}\"\n",
			want: "avg = (\"{}\".format(__format__((mean), \".2f\")))\n",
		},
		"raw prefix": {
			src:  "pattern = rf\"\\d{n}\"\n",
			want: "pattern = (r\"\\d{}\".format((n)))\n",
		},
		"nested quotes and brackets": {
			src:  "msg = f\"{items[0]} {d['k']}\"\n",
			want: "msg = (\"{} {}\".format((items[0]), (d['k'])))\n",
		},
		"triple quoted keeps lines": {
			src:  "doc = f\"\"\"a\n{b}\"\"\"\n",
			want: "doc = (\"\"\"a\n{}\"\"\".format((b)))\n",
		},
		"plain strings and comments untouched": {
			src:  "s = \"f{x}\"  # f\"not code {y}\"\nif x: pass\n",
			want: "s = \"f{x}\"  # f\"not code {y}\"\nif x: pass\n",
		},
		"empty field left for the parser": {
			src:  "x = f\"{}\"\n",
			want: "x = f\"{}\"\n",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, translateFStrings(tc.src))
		})
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		value starlark.Value
		spec  string
		want  string
	}{
		{starlark.MakeInt(7), "03d", "007"},
		{starlark.MakeInt(5), ">4", "   5"},
		{starlark.MakeInt(255), "x", "ff"},
		{starlark.Float(1.0 / 3), ".2f", "0.33"},
		{starlark.Float(1234.5), "+.1f", "+1234.5"},
		{starlark.Float(0.25), ".0%", "25%"},
		{starlark.Float(2.5), "", "2.5"},
		{starlark.String("ab"), "4", "ab  "},
		{starlark.String("ab"), ">4", "  ab"},
	}
	for _, tc := range cases {
		got, err := formatValue(tc.value, tc.spec)
		require.NoError(t, err, "%s with %q", tc.value, tc.spec)
		require.Equal(t, tc.want, got, "%s with %q", tc.value, tc.spec)
	}

	_, err := formatValue(starlark.String("a"), "d")
	require.Error(t, err)

	_, err = formatValue(starlark.MakeInt(1), "^5")
	require.ErrorContains(t, err, "unsupported format spec")
}
