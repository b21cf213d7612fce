package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPythonCode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "python fence",
			in:   "Here you go:\n```python\nimport pandas as pd\nprint(1)\n```\nDone.",
			want: "import pandas as pd\nprint(1)",
		},
		{
			name: "python fence is case-insensitive",
			in:   "```Python\nx = 1\n```",
			want: "x = 1",
		},
		{
			name: "first python block wins over earlier generic block",
			in:   "```\nnot this\n```\n```python\nthis\n```",
			want: "this",
		},
		{
			name: "generic fence",
			in:   "```\ndf.head()\n```",
			want: "df.head()",
		},
		{
			name: "unclosed python fence",
			in:   "```python\nimport numpy as np\nnp.zeros(3)",
			want: "import numpy as np\nnp.zeros(3)",
		},
		{
			name: "bare code",
			in:   "  print('hi')  \n",
			want: "print('hi')",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PythonCode(tc.in))
		})
	}
}
